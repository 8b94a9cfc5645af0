// Package media defines the external collaborator contracts the
// conversion pipeline is built against: input demuxers, output muxers,
// and codec encoder/decoder backends (spec.md §6). These are genuinely
// external to the core per spec.md §1's "out of scope" list — the core
// only depends on these interfaces. internal/mp4demux provides the one
// concrete, real InputSource (MP4 + AAC/Opus decode); encoders and
// muxers stay interface-only and are exercised in tests via fakes.
package media

import "context"

// TrackType distinguishes the three kinds of track the pipeline
// understands (spec.md §3's DiscardedTrack reasons reference "type").
type TrackType int

const (
	TrackUnknown TrackType = iota
	TrackVideo
	TrackAudio
	TrackSubtitle
)

func (t TrackType) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	case TrackSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// Disposition carries the handful of track flags the output metadata
// needs to preserve (spec.md §4.5, §4.6 "Track metadata written to the
// output").
type Disposition struct {
	Default bool
	Forced  bool
}

// DecoderConfig is the opaque, codec-specific configuration blob a
// decoder backend needs to start decoding a track (e.g. an
// AudioSpecificConfig for AAC, extracted from an esds box the way
// internal/bpm's getAudioSpecificConfig did).
type DecoderConfig struct {
	Codec       string
	Description []byte
}

// Packet is one encoded access unit, as forwarded unchanged on the
// copy/fast path (spec.md §4.5, §4.6) or produced by an encoder.
type Packet struct {
	Timestamp float64 // seconds
	Duration  float64 // seconds
	Data      []byte
	IsKeyFrame bool
	// SideData holds auxiliary per-packet metadata (e.g. alpha channel
	// data) keyed by a backend-defined name. Cloned, never shared,
	// before mutation — see spec.md §9's alpha-discard open question.
	SideData map[string][]byte
}

// Clone returns a deep copy of the packet suitable for in-place
// mutation (e.g. stripping alpha side-data) without affecting a
// shared source packet (spec.md §9).
func (p Packet) Clone() Packet {
	out := p
	if p.Data != nil {
		out.Data = append([]byte(nil), p.Data...)
	}
	if p.SideData != nil {
		out.SideData = make(map[string][]byte, len(p.SideData))
		for k, v := range p.SideData {
			out.SideData[k] = append([]byte(nil), v...)
		}
	}
	return out
}

// VideoSample is one decoded (or rasterized/transformed) video frame.
type VideoSample struct {
	Timestamp float64
	Duration  float64
	Width     int
	Height    int
	// Data is an opaque pixel buffer in a backend-defined format
	// (core code never interprets it, only moves it between decoder,
	// transform, and encoder backends).
	Data []byte
}

// SampleFormat identifies the PCM layout of an AudioSample.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatF32     // interleaved float32, the resampler's native format (spec.md §4.4)
)

// AudioSample is one decoded chunk of interleaved PCM audio.
type AudioSample struct {
	Timestamp  float64
	Format     SampleFormat
	SampleRate int
	Channels   int
	// Data holds Channels-interleaved samples; for FormatF32, Frames()
	// == len(Data)/Channels.
	Data []float32
}

// Frames returns the number of sample frames (i.e. per-channel samples)
// this chunk carries.
func (s AudioSample) Frames() int {
	if s.Channels == 0 {
		return 0
	}
	return len(s.Data) / s.Channels
}

// Duration returns the wall-clock length of this chunk in seconds.
func (s AudioSample) Duration() float64 {
	if s.SampleRate == 0 {
		return 0
	}
	return float64(s.Frames()) / float64(s.SampleRate)
}

// Fit controls how source dimensions map onto a differently-shaped
// target frame (spec.md §6, video options' "fit").
type Fit int

const (
	FitPassThrough Fit = iota // no explicit fit requested; only valid when dimensions are unconstrained
	FitFill
	FitContain
	FitCover
)

// Crop is a pixel rectangle, applied before scale (spec.md §4.5).
type Crop struct {
	Left, Top, Width, Height int
}

// Alpha controls whether an alpha channel survives the copy path
// (spec.md §6 "alpha").
type Alpha int

const (
	AlphaDiscard Alpha = iota
	AlphaKeep
)

// HardwareAcceleration mirrors the hint in spec.md §6's video options.
type HardwareAcceleration int

const (
	HWNoPreference HardwareAcceleration = iota
	HWPreferHardware
	HWPreferSoftware
)

// CanvasRequest configures the input collaborator's rasterizer for the
// rerender path (spec.md §6 "rasterized canvas with
// {width,height,fit,rotation,crop,alpha}").
type CanvasRequest struct {
	Width, Height int
	Fit           Fit
	Rotation      int // normalized to {0, 90, 180, 270}
	Crop          *Crop
	Alpha         Alpha
}

// DiscardReason is why a track was dropped from the output rather than
// utilized (spec.md §3's DiscardedTrack).
type DiscardReason int

const (
	DiscardUnknown DiscardReason = iota
	DiscardByUser
	DiscardMaxTrackCountReached
	DiscardMaxTrackCountOfTypeReached
	DiscardUnknownSourceCodec
	DiscardUndecodableSourceCodec
	DiscardNoEncodableTargetCodec
)

func (r DiscardReason) String() string {
	switch r {
	case DiscardByUser:
		return "discarded_by_user"
	case DiscardMaxTrackCountReached:
		return "max_track_count_reached"
	case DiscardMaxTrackCountOfTypeReached:
		return "max_track_count_of_type_reached"
	case DiscardUnknownSourceCodec:
		return "unknown_source_codec"
	case DiscardUndecodableSourceCodec:
		return "undecodable_source_codec"
	case DiscardNoEncodableTargetCodec:
		return "no_encodable_target_codec"
	default:
		return "unknown"
	}
}

// DiscardedTrack records an input track that did not make it into the
// output, and why (spec.md §3). Codec is the track's source codec name
// (VideoCodec()/AudioCodec().String()), empty when the track type has
// none (e.g. subtitle), used to build specific diagnostics such as
// spec.md §8 Scenario 6's "names the codec" requirement.
type DiscardedTrack struct {
	TrackID int
	Type    TrackType
	Reason  DiscardReason
	Codec   string
}

// PacketSource pulls encoded packets from an input track (copy path).
type PacketSource interface {
	Next(ctx context.Context) (Packet, bool, error)
	Close() error
}

// VideoSampleSource pulls decoded video frames from an input track.
type VideoSampleSource interface {
	Next(ctx context.Context) (VideoSample, bool, error)
	Close() error
}

// AudioSampleSource pulls decoded audio chunks from an input track.
type AudioSampleSource interface {
	Next(ctx context.Context) (AudioSample, bool, error)
	Close() error
}
