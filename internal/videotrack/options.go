// Package videotrack implements the per-video-track planning and
// execution state machine (spec.md §4.5): decide copy vs transcode,
// compute target geometry, and drive the rotate → crop → scale →
// frame-rate → user-process → encode chain.
package videotrack

import (
	"context"

	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
	"github.com/jota2rz/vdj-video-sync/server/internal/quality"
)

// ProcessFunc is the user hook contract for video.process (spec.md §4.5,
// §9's "ProcessedFrame" tagged variant). Returning a nil/empty Samples
// slice is the "None" case; a single element is "One"; more is "Many".
// Samples with a zero Timestamp/Duration inherit the source sample's.
type ProcessFunc func(ctx context.Context, sample media.VideoSample) (samples []media.VideoSample, err error)

// Options is one track's video.* configuration bundle (spec.md §6).
type Options struct {
	Discard               bool
	Width, Height         int
	Fit                   media.Fit
	Rotate                int // one of {0,90,180,270}
	AllowRotationMetadata bool
	Crop                  *media.Crop
	FrameRate             float64 // 0 means unset
	Codec                 codecs.Video
	Bitrate               int64 // explicit bits/s; 0 means "use Quality"
	Quality               quality.Quality
	Alpha                 media.Alpha
	KeyFrameInterval      int
	HardwareAcceleration  media.HardwareAcceleration
	ForceTranscode        bool
	Process               ProcessFunc
	ProcessedWidth        int
	ProcessedHeight       int
}

// DefaultOptions returns the spec.md §6 defaults for fields with one.
func DefaultOptions() Options {
	return Options{
		AllowRotationMetadata: true,
		Alpha:                 media.AlphaDiscard,
		Quality:               quality.High,
	}
}
