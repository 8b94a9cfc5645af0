// Package audiotrack implements the per-audio-track planning and
// execution state machine (spec.md §4.6): decide copy vs transcode, and
// drive decoded samples through the resampler/remixer before encoding.
package audiotrack

import (
	"context"

	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
	"github.com/jota2rz/vdj-video-sync/server/internal/quality"
)

// ProcessFunc is the user hook contract for audio.process (spec.md
// §4.6): unlike video, it must return only audio samples (enforced by
// the type system rather than a runtime check).
type ProcessFunc func(ctx context.Context, sample media.AudioSample) (samples []media.AudioSample, err error)

// Options is one track's audio.* configuration bundle (spec.md §6).
type Options struct {
	Discard                   bool
	NumberOfChannels          int // 0 means "use source"
	SampleRate                int // 0 means "use source"
	Codec                     codecs.Audio
	Bitrate                   int64
	Quality                   quality.Quality
	ForceTranscode            bool
	Process                   ProcessFunc
	ProcessedNumberOfChannels int
	ProcessedSampleRate       int
}

// DefaultOptions returns the spec.md §6 defaults for fields with one.
func DefaultOptions() Options {
	return Options{Quality: quality.High}
}
