package media

import (
	"context"

	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
)

// InputFormat describes the container format of an opened input
// (spec.md §6 "get_format() → {mime_type}").
type InputFormat struct {
	MimeType string
}

// InputTrack is one track of an opened input container (spec.md §6).
type InputTrack interface {
	ID() int
	Type() TrackType
	VideoCodec() codecs.Video // valid when Type() == TrackVideo
	AudioCodec() codecs.Audio // valid when Type() == TrackAudio
	CodedDimensions() (width, height int)
	Rotation() int // degrees, normalized to {0,90,180,270}
	SampleRate() int
	ChannelCount() int
	LanguageCode() string
	Name() string
	Disposition() Disposition
	FirstTimestamp(ctx context.Context) (float64, error)
	CanDecode() bool
	DecoderConfig() DecoderConfig

	Packets(ctx context.Context) (PacketSource, error)
	VideoSamples(ctx context.Context) (VideoSampleSource, error)
	AudioSamples(ctx context.Context) (AudioSampleSource, error)
	Canvas(ctx context.Context, req CanvasRequest) (VideoSampleSource, error)
}

// InputSource is an opened input container (spec.md §6).
type InputSource interface {
	Tracks() []InputTrack
	MetadataTags() map[string]string
	Format() InputFormat
	ComputeDuration(ctx context.Context) (float64, error)
	Close() error
}

// TrackCountRange is a {min,max} pair as returned by
// OutputFormat.SupportedTrackCounts (spec.md §6).
type TrackCountRange struct {
	Min, Max int
}

// TrackCounts is the full structure an output format advertises
// (spec.md §6).
type TrackCounts struct {
	Total    TrackCountRange
	Video    TrackCountRange
	Audio    TrackCountRange
	Subtitle TrackCountRange
}

// OutputFormat describes the capabilities of a target container
// (spec.md §6).
type OutputFormat interface {
	MimeType() string
	SupportedTrackCounts() TrackCounts
	SupportedVideoCodecs() []codecs.Video
	SupportedAudioCodecs() []codecs.Audio
	SupportedSubtitleCodecs() []string
	SupportsVideoRotationMetadata() bool
}

// OutputState is the output sink's lifecycle state (spec.md §6).
type OutputState int

const (
	OutputPending OutputState = iota
	OutputStarting
	OutputRunning
	OutputFinalizing
	OutputFinalized
	OutputCanceled
)

// VideoTrackConfig describes a video track being added to the output
// (spec.md §4.5 "Track metadata written to the output").
type VideoTrackConfig struct {
	Codec       codecs.Video
	Width       int
	Height      int
	FrameRate   float64 // hint, 0 if unknown
	Rotation    int      // 0 if rerendered (rotation baked into pixels), else total_rotation as metadata
	Language    string
	Name        string
	Disposition Disposition
	DecoderConfig DecoderConfig
}

// AudioTrackConfig describes an audio track being added to the output
// (spec.md §4.6).
type AudioTrackConfig struct {
	Codec         codecs.Audio
	SampleRate    int
	Channels      int
	Language      string
	Name          string
	Disposition   Disposition
	DecoderConfig DecoderConfig
}

// TrackWriter receives encoded packets for one output track.
type TrackWriter interface {
	WritePacket(ctx context.Context, p Packet) error
	Close(ctx context.Context) error
}

// OutputSink is an opened output container (spec.md §6).
type OutputSink interface {
	Format() OutputFormat
	State() OutputState
	AddVideoTrack(cfg VideoTrackConfig) (TrackWriter, error)
	AddAudioTrack(cfg AudioTrackConfig) (TrackWriter, error)
	SetMetadataTags(ctx context.Context, tags map[string]string) error
	Start(ctx context.Context) error
	Finalize(ctx context.Context) error
	Cancel() error
}

// SizeChangeBehavior is the encoder-config analogue of Fit, used when
// building the encoder's config for the rerender/pass-through decision
// (spec.md §4.5 "size_change_behavior = opts.fit ?? passThrough").
type SizeChangeBehavior int

const (
	SizeChangePassThrough SizeChangeBehavior = iota
	SizeChangeFill
	SizeChangeContain
	SizeChangeCover
)

// VideoEncoderOptions configures a new video encoder instance
// (spec.md §4.2, §4.5).
type VideoEncoderOptions struct {
	SizeChangeBehavior  SizeChangeBehavior
	KeyFrameInterval    int
	HardwareAcceleration HardwareAcceleration
}

// VideoEncoder turns decoded/transformed frames into encoded packets.
type VideoEncoder interface {
	Encode(ctx context.Context, sample VideoSample) ([]Packet, error)
	Flush(ctx context.Context) ([]Packet, error)
	Close() error
}

// AudioEncoder turns decoded/resampled audio into encoded packets.
type AudioEncoder interface {
	Encode(ctx context.Context, sample AudioSample) ([]Packet, error)
	Flush(ctx context.Context) ([]Packet, error)
	Close() error
}

// EncoderBackend is asked whether it can encode a given
// (codec, parameters) combination, and to build encoders that do
// (spec.md §4.2).
type EncoderBackend interface {
	Name() string
	CanEncodeVideo(codec codecs.Video, width, height int, bitrate int64, opts VideoEncoderOptions) bool
	CanEncodeAudio(codec codecs.Audio, channels, sampleRate int, bitrate int64) bool
	CanEncodeSubtitles(codec string) bool
	NewVideoEncoder(codec codecs.Video, width, height int, bitrate int64, opts VideoEncoderOptions) (VideoEncoder, error)
	NewAudioEncoder(codec codecs.Audio, channels, sampleRate int, bitrate int64) (AudioEncoder, error)
	// OverReportsSupport marks a backend whose CanEncode* answers are
	// known to be optimistic, forcing the capability probe to do a
	// one-frame trial encode (spec.md §4.2).
	OverReportsSupport() bool
}
