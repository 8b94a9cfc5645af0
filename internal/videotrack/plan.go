package videotrack

import (
	"context"
	"math"

	"github.com/jota2rz/vdj-video-sync/server/internal/capability"
	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
)

// Plan is the outcome of planning one video track (spec.md §4.5).
type Plan struct {
	Discarded     bool
	DiscardReason media.DiscardReason

	CopyPath bool

	TotalRotation          int
	TargetWidth            int
	TargetHeight           int
	Codec                  codecs.Video
	Bitrate                int64
	NeedsTranscode         bool
	NeedsRerender          bool
	RotationMetadataBaked  bool // true: rotation must be baked into pixels, not metadata
}

// PlanInputs bundles everything Plan needs about the track and its
// surrounding conversion context.
type PlanInputs struct {
	Track       media.InputTrack
	Opts        Options
	OutFormat   media.OutputFormat
	Prober      *capability.Prober
	TrimStart   float64
	FirstPTS    float64 // track.FirstTimestamp(); <0 means the track doesn't start at the conversion's zero point
}

// PlanTrack implements spec.md §4.5's planning rules.
func PlanTrack(ctx context.Context, in PlanInputs) Plan {
	if in.Opts.Discard {
		return Plan{Discarded: true, DiscardReason: media.DiscardByUser}
	}

	sourceCodec := in.Track.VideoCodec()
	if sourceCodec == codecs.VideoUnknown {
		return Plan{Discarded: true, DiscardReason: media.DiscardUnknownSourceCodec}
	}

	codedW, codedH := in.Track.CodedDimensions()
	totalRotation := normalizeRotation(in.Track.Rotation() + in.Opts.Rotate)

	rotatedW, rotatedH := codedW, codedH
	if totalRotation%180 != 0 {
		rotatedW, rotatedH = codedH, codedW
	}

	preRerenderW, preRerenderH := rotatedW, rotatedH
	if in.Opts.Crop != nil {
		preRerenderW = clamp(in.Opts.Crop.Width, 0, rotatedW)
		preRerenderH = clamp(in.Opts.Crop.Height, 0, rotatedH)
	}

	targetW, targetH := deriveTargetDimensions(in.Opts.Width, in.Opts.Height, preRerenderW, preRerenderH)
	targetW = roundUpEven(targetW)
	targetH = roundUpEven(targetH)

	rotationMetadataSupported := in.Opts.AllowRotationMetadata && in.OutFormat.SupportsVideoRotationMetadata()

	needsTranscode := in.Opts.ForceTranscode ||
		in.TrimStart > 0 ||
		in.FirstPTS < 0 ||
		in.Opts.FrameRate > 0 ||
		in.Opts.KeyFrameInterval > 0 ||
		in.Opts.Process != nil

	needsRerender := (targetW != preRerenderW || targetH != preRerenderH) ||
		(totalRotation != 0 && (!rotationMetadataSupported || in.Opts.Process != nil)) ||
		in.Opts.Crop != nil

	codecOverridden := in.Opts.Codec != codecs.VideoUnknown && in.Opts.Codec != sourceCodec
	outputSupportsSource := supportsVideoCodec(in.OutFormat, sourceCodec)

	if !needsTranscode && in.Opts.Bitrate == 0 && !needsRerender &&
		outputSupportsSource && !codecOverridden {
		return Plan{
			CopyPath:       true,
			TotalRotation:  totalRotation,
			TargetWidth:    targetW,
			TargetHeight:   targetH,
			Codec:          sourceCodec,
			NeedsTranscode: false,
			NeedsRerender:  false,
		}
	}

	if !in.Track.CanDecode() {
		return Plan{Discarded: true, DiscardReason: media.DiscardUndecodableSourceCodec}
	}

	candidates := videoCandidates(in.Opts.Codec, in.OutFormat)
	hintW, hintH := targetW, targetH
	if in.Opts.ProcessedWidth > 0 {
		hintW = in.Opts.ProcessedWidth
	}
	if in.Opts.ProcessedHeight > 0 {
		hintH = in.Opts.ProcessedHeight
	}

	bitrate := in.Opts.Bitrate
	if bitrate == 0 {
		bitrate = in.Opts.Quality.ToVideoBitrate(firstOr(candidates, codecs.AVC), hintW, hintH)
	}

	chosen, ok := pickFirstEncodable(ctx, in.Prober, candidates, hintW, hintH, bitrate, in.Opts)
	if !ok {
		return Plan{Discarded: true, DiscardReason: media.DiscardNoEncodableTargetCodec}
	}
	if in.Opts.Bitrate == 0 {
		bitrate = in.Opts.Quality.ToVideoBitrate(chosen, hintW, hintH)
	}

	return Plan{
		CopyPath:       false,
		TotalRotation:  totalRotation,
		TargetWidth:    targetW,
		TargetHeight:   targetH,
		Codec:          chosen,
		Bitrate:        bitrate,
		NeedsTranscode: needsTranscode,
		NeedsRerender:  needsRerender,

		RotationMetadataBaked: needsRerender && totalRotation != 0,
	}
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	// Snap to the nearest supported quarter-turn; inputs are expected to
	// already be one of {0,90,180,270}.
	switch {
	case r < 45 || r >= 315:
		return 0
	case r < 135:
		return 90
	case r < 225:
		return 180
	default:
		return 270
	}
}

func deriveTargetDimensions(optW, optH, sourceW, sourceH int) (w, h int) {
	switch {
	case optW > 0 && optH > 0:
		return optW, optH
	case optW > 0:
		return optW, int(math.Ceil(float64(optW) * float64(sourceH) / float64(sourceW)))
	case optH > 0:
		return int(math.Ceil(float64(optH) * float64(sourceW) / float64(sourceH))), optH
	default:
		return sourceW, sourceH
	}
}

func roundUpEven(v int) int {
	if v%2 != 0 {
		return v + 1
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func supportsVideoCodec(f media.OutputFormat, c codecs.Video) bool {
	for _, sc := range f.SupportedVideoCodecs() {
		if sc == c {
			return true
		}
	}
	return false
}

func videoCandidates(requested codecs.Video, f media.OutputFormat) []codecs.Video {
	if requested != codecs.VideoUnknown {
		return []codecs.Video{requested}
	}
	return f.SupportedVideoCodecs()
}

func pickFirstEncodable(ctx context.Context, p *capability.Prober, candidates []codecs.Video, w, h int, bitrate int64, opts Options) (codecs.Video, bool) {
	encOpts := media.VideoEncoderOptions{
		SizeChangeBehavior:   sizeChangeFromFit(opts.Fit),
		KeyFrameInterval:     opts.KeyFrameInterval,
		HardwareAcceleration: opts.HardwareAcceleration,
	}
	return p.GetFirstEncodableVideo(ctx, candidates, w, h, bitrate, encOpts)
}

func sizeChangeFromFit(fit media.Fit) media.SizeChangeBehavior {
	switch fit {
	case media.FitFill:
		return media.SizeChangeFill
	case media.FitContain:
		return media.SizeChangeContain
	case media.FitCover:
		return media.SizeChangeCover
	default:
		return media.SizeChangePassThrough
	}
}

func firstOr(cands []codecs.Video, fallback codecs.Video) codecs.Video {
	if len(cands) == 0 {
		return fallback
	}
	return cands[0]
}
