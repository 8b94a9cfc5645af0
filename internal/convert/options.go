package convert

import (
	"context"
	"math"

	"github.com/jota2rz/vdj-video-sync/server/internal/audiotrack"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
	"github.com/jota2rz/vdj-video-sync/server/internal/videotrack"
)

// VideoOptionsFunc selects video.* options for the nth (1-based) video
// track (spec.md §6 "video: object or (track, n) -> options").
type VideoOptionsFunc func(track media.InputTrack, n int) videotrack.Options

// AudioOptionsFunc is VideoOptionsFunc's audio-track analogue.
type AudioOptionsFunc func(track media.InputTrack, n int) audiotrack.Options

// TagsFunc transforms input metadata tags into output ones (spec.md §6
// "tags: object or (input_tags) -> output_tags").
type TagsFunc func(ctx context.Context, inputTags map[string]string) (map[string]string, error)

// Trim specifies the time range of the input to convert (spec.md §6).
type Trim struct {
	Start float64 // seconds, >= 0
	End   float64 // seconds, > Start; math.Inf(1) means "to the end"
}

// ConversionOptions is the top-level configuration bundle (spec.md §6).
type ConversionOptions struct {
	Input  media.InputSource
	Output media.OutputSink

	Video VideoOptionsFunc // nil means videotrack.DefaultOptions() for every track
	Audio AudioOptionsFunc // nil means audiotrack.DefaultOptions() for every track

	Trim Trim

	Tags TagsFunc

	ShowWarnings bool

	OnProgress func(p float64)

	// VideoBackend/AudioBackend back the capability probe and the
	// encoders built for transcode-path tracks. CustomBackends are
	// checked first, per spec.md §4.2's "user-registered custom
	// encoder" override.
	VideoBackend   media.EncoderBackend
	AudioBackend   media.EncoderBackend
	CustomBackends []media.EncoderBackend
}

func (o ConversionOptions) videoOptionsFor(track media.InputTrack, n int) videotrack.Options {
	if o.Video == nil {
		return videotrack.DefaultOptions()
	}
	return o.Video(track, n)
}

func (o ConversionOptions) audioOptionsFor(track media.InputTrack, n int) audiotrack.Options {
	if o.Audio == nil {
		return audiotrack.DefaultOptions()
	}
	return o.Audio(track, n)
}

func (o ConversionOptions) validate() error {
	if o.Input == nil {
		return &InvalidOptionError{Path: "input", Message: "required"}
	}
	if o.Output == nil {
		return &InvalidOptionError{Path: "output", Message: "required"}
	}
	if o.Trim.Start < 0 {
		return &InvalidOptionError{Path: "trim.start", Message: "must be >= 0"}
	}
	if o.Trim.End != 0 && o.Trim.End <= o.Trim.Start {
		return &InvalidOptionError{Path: "trim.end", Message: "must be > trim.start"}
	}
	return nil
}

func (o ConversionOptions) trimEnd() float64 {
	if o.Trim.End == 0 {
		return math.Inf(1)
	}
	return o.Trim.End
}
