package audiotrack

import (
	"context"

	"github.com/jota2rz/vdj-video-sync/server/internal/capability"
	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
)

const fallbackChannels = 2
const fallbackSampleRate = 48000

// Plan is the outcome of planning one audio track (spec.md §4.6).
type Plan struct {
	Discarded     bool
	DiscardReason media.DiscardReason

	CopyPath bool

	TargetChannels int
	TargetRate     int
	Codec          codecs.Audio
	Bitrate        int64
	NeedsResample  bool
}

// PlanInputs bundles everything Plan needs about the track and its
// surrounding conversion context.
type PlanInputs struct {
	Track     media.InputTrack
	Opts      Options
	OutFormat media.OutputFormat
	Prober    *capability.Prober
	TrimStart float64
	FirstPTS  float64
}

// PlanTrack implements spec.md §4.6's planning rules.
func PlanTrack(ctx context.Context, in PlanInputs) Plan {
	if in.Opts.Discard {
		return Plan{Discarded: true, DiscardReason: media.DiscardByUser}
	}

	sourceCodec := in.Track.AudioCodec()
	if sourceCodec == codecs.AudioUnknown {
		return Plan{Discarded: true, DiscardReason: media.DiscardUnknownSourceCodec}
	}

	sourceChannels := in.Track.ChannelCount()
	sourceRate := in.Track.SampleRate()

	targetChannels := sourceChannels
	if in.Opts.NumberOfChannels > 0 {
		targetChannels = in.Opts.NumberOfChannels
	}
	targetRate := sourceRate
	if in.Opts.SampleRate > 0 {
		targetRate = in.Opts.SampleRate
	}

	needsResample := targetChannels != sourceChannels ||
		targetRate != sourceRate ||
		in.TrimStart > 0 ||
		in.FirstPTS < 0

	codecOverridden := in.Opts.Codec != codecs.AudioUnknown && in.Opts.Codec != sourceCodec
	outputSupportsSource := supportsAudioCodec(in.OutFormat, sourceCodec)

	if !in.Opts.ForceTranscode && in.Opts.Bitrate == 0 && !needsResample &&
		outputSupportsSource && !codecOverridden && in.Opts.Process == nil {
		return Plan{
			CopyPath:       true,
			TargetChannels: targetChannels,
			TargetRate:     targetRate,
			Codec:          sourceCodec,
		}
	}

	if !in.Track.CanDecode() {
		return Plan{Discarded: true, DiscardReason: media.DiscardUndecodableSourceCodec}
	}

	candidates := audioCandidates(in.Opts.Codec, in.OutFormat)

	chosen, bitrate, ok := pickEncodableNonPCM(ctx, in.Prober, candidates, targetChannels, targetRate, in.Opts.Bitrate, in.Opts)
	if ok {
		return Plan{
			TargetChannels: targetChannels,
			TargetRate:     targetRate,
			Codec:          chosen,
			Bitrate:        bitrate,
			NeedsResample:  needsResample,
		}
	}

	if formatHasNonPCMCandidate(candidates) {
		fChosen, fBitrate, fOK := pickEncodableNonPCM(ctx, in.Prober, candidates, fallbackChannels, fallbackSampleRate, in.Opts.Bitrate, in.Opts)
		if fOK {
			return Plan{
				TargetChannels: fallbackChannels,
				TargetRate:     fallbackSampleRate,
				Codec:          fChosen,
				Bitrate:        fBitrate,
				NeedsResample:  true,
			}
		}
	}

	pcmChosen, pcmBitrate, pcmOK := pickEncodableAny(ctx, in.Prober, candidates, targetChannels, targetRate, in.Opts.Bitrate, in.Opts)
	if pcmOK {
		return Plan{
			TargetChannels: targetChannels,
			TargetRate:     targetRate,
			Codec:          pcmChosen,
			Bitrate:        pcmBitrate,
			NeedsResample:  needsResample,
		}
	}

	return Plan{Discarded: true, DiscardReason: media.DiscardNoEncodableTargetCodec}
}

func supportsAudioCodec(f media.OutputFormat, c codecs.Audio) bool {
	for _, sc := range f.SupportedAudioCodecs() {
		if sc == c {
			return true
		}
	}
	return false
}

func audioCandidates(requested codecs.Audio, f media.OutputFormat) []codecs.Audio {
	if requested != codecs.AudioUnknown {
		return []codecs.Audio{requested}
	}
	return f.SupportedAudioCodecs()
}

func formatHasNonPCMCandidate(candidates []codecs.Audio) bool {
	for _, c := range candidates {
		if !c.IsPCM() {
			return true
		}
	}
	return false
}

func bitrateFor(c codecs.Audio, explicit int64, opts Options) int64 {
	if explicit != 0 {
		return explicit
	}
	br, _ := opts.Quality.ToAudioBitrate(c)
	return br
}

func pickEncodableNonPCM(ctx context.Context, p *capability.Prober, candidates []codecs.Audio, channels, rate int, explicit int64, opts Options) (codecs.Audio, int64, bool) {
	for _, c := range candidates {
		if c.IsPCM() {
			continue
		}
		br := bitrateFor(c, explicit, opts)
		if p.CanEncodeAudio(ctx, c, channels, rate, br) {
			return c, br, true
		}
	}
	return codecs.AudioUnknown, 0, false
}

func pickEncodableAny(ctx context.Context, p *capability.Prober, candidates []codecs.Audio, channels, rate int, explicit int64, opts Options) (codecs.Audio, int64, bool) {
	for _, c := range candidates {
		br := bitrateFor(c, explicit, opts)
		if p.CanEncodeAudio(ctx, c, channels, rate, br) {
			return c, br, true
		}
	}
	return codecs.AudioUnknown, 0, false
}
