// Package capability answers "can this backend actually encode this?"
// (spec.md §4.2). It sits between the planner and a media.EncoderBackend,
// adding the user-registered custom-encoder override, the even-dimension
// rule for avc/hevc, PCM's unconditional audio support, and a one-frame
// trial-encode fallback for backends known to over-report support.
package capability

import (
	"context"
	"strconv"

	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
	"github.com/jota2rz/vdj-video-sync/server/internal/metrics"
)

// Prober answers encodability questions for one backend, with an
// optional set of user-registered custom encoders checked first.
type Prober struct {
	backend media.EncoderBackend
	custom  []media.EncoderBackend
}

// NewProber creates a Prober. backend may be nil if only custom
// encoders are registered.
func NewProber(backend media.EncoderBackend, custom ...media.EncoderBackend) *Prober {
	return &Prober{backend: backend, custom: custom}
}

// CanEncodeVideo implements spec.md §4.2's can_encode_video.
func (p *Prober) CanEncodeVideo(ctx context.Context, codec codecs.Video, width, height int, bitrate int64, opts media.VideoEncoderOptions) bool {
	for _, c := range p.custom {
		if c.CanEncodeVideo(codec, width, height, bitrate, opts) {
			return true
		}
	}
	if (codec == codecs.AVC || codec == codecs.HEVC) && (width%2 != 0 || height%2 != 0) {
		return false
	}
	if p.backend == nil {
		return false
	}
	if !p.backend.CanEncodeVideo(codec, width, height, bitrate, opts) {
		return false
	}
	if p.backend.OverReportsSupport() {
		metrics.CapabilityProbes.WithLabelValues("video", strconv.FormatBool(true)).Inc()
		return p.trialEncodeVideo(ctx, codec, width, height, bitrate, opts) == nil
	}
	metrics.CapabilityProbes.WithLabelValues("video", strconv.FormatBool(false)).Inc()
	return true
}

// CanEncodeAudio implements spec.md §4.2's can_encode_audio.
func (p *Prober) CanEncodeAudio(ctx context.Context, codec codecs.Audio, channels, sampleRate int, bitrate int64) bool {
	for _, c := range p.custom {
		if c.CanEncodeAudio(codec, channels, sampleRate, bitrate) {
			return true
		}
	}
	if codec.IsPCM() {
		return true
	}
	if p.backend == nil {
		return false
	}
	if !p.backend.CanEncodeAudio(codec, channels, sampleRate, bitrate) {
		return false
	}
	if p.backend.OverReportsSupport() {
		metrics.CapabilityProbes.WithLabelValues("audio", strconv.FormatBool(true)).Inc()
		return p.trialEncodeAudio(ctx, codec, channels, sampleRate, bitrate) == nil
	}
	metrics.CapabilityProbes.WithLabelValues("audio", strconv.FormatBool(false)).Inc()
	return true
}

// CanEncodeSubtitles implements spec.md §4.2's can_encode_subtitles.
func (p *Prober) CanEncodeSubtitles(codec string) bool {
	for _, c := range p.custom {
		if c.CanEncodeSubtitles(codec) {
			return true
		}
	}
	if p.backend == nil {
		return false
	}
	return p.backend.CanEncodeSubtitles(codec)
}

// GetFirstEncodableVideo returns the first candidate codec that is
// encodable, in caller order (spec.md §4.2's get_first_encodable_*).
func (p *Prober) GetFirstEncodableVideo(ctx context.Context, candidates []codecs.Video, width, height int, bitrate int64, opts media.VideoEncoderOptions) (codecs.Video, bool) {
	for _, c := range candidates {
		if p.CanEncodeVideo(ctx, c, width, height, bitrate, opts) {
			return c, true
		}
	}
	return codecs.VideoUnknown, false
}

// GetFirstEncodableAudio returns the first candidate codec that is
// encodable, in caller order.
func (p *Prober) GetFirstEncodableAudio(ctx context.Context, candidates []codecs.Audio, channels, sampleRate int, bitrate int64) (codecs.Audio, bool) {
	for _, c := range candidates {
		if p.CanEncodeAudio(ctx, c, channels, sampleRate, bitrate) {
			return c, true
		}
	}
	return codecs.AudioUnknown, false
}

func (p *Prober) trialEncodeVideo(ctx context.Context, codec codecs.Video, width, height int, bitrate int64, opts media.VideoEncoderOptions) error {
	enc, err := p.backend.NewVideoEncoder(codec, width, height, bitrate, opts)
	if err != nil {
		return err
	}
	defer enc.Close()
	if _, err := enc.Encode(ctx, media.VideoSample{Width: width, Height: height}); err != nil {
		return err
	}
	_, err = enc.Flush(ctx)
	return err
}

func (p *Prober) trialEncodeAudio(ctx context.Context, codec codecs.Audio, channels, sampleRate int, bitrate int64) error {
	enc, err := p.backend.NewAudioEncoder(codec, channels, sampleRate, bitrate)
	if err != nil {
		return err
	}
	defer enc.Close()
	sample := media.AudioSample{
		Format:     media.FormatF32,
		SampleRate: sampleRate,
		Channels:   channels,
		Data:       make([]float32, channels*sampleRate/100), // ~10ms of silence
	}
	if _, err := enc.Encode(ctx, sample); err != nil {
		return err
	}
	_, err = enc.Flush(ctx)
	return err
}
