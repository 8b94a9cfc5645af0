package videotrack

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/jota2rz/vdj-video-sync/server/internal/media"
	"github.com/jota2rz/vdj-video-sync/server/internal/syncer"
)

// Pipeline drives one video track end to end: either the copy path
// (forward encoded packets) or the transcode path (decode, transform,
// encode), per spec.md §4.5.
type Pipeline struct {
	TrackID    int
	Track      media.InputTrack
	Plan       Plan
	Opts       Options
	Writer     media.TrackWriter
	Sync       *syncer.Synchronizer
	TrimStart  float64
	TrimEnd    float64 // math.Inf(1) if untrimmed
	Cancel     *atomic.Bool
	OnProgress func(ts float64)

	// NewEncoder constructs a fresh encoder matching Plan.Codec/
	// TargetWidth/TargetHeight/Bitrate. Unused on the copy path.
	NewEncoder func() (media.VideoEncoder, error)
}

// ErrCanceled is returned by Run when the shared cancellation flag was
// observed set (spec.md §5).
var ErrCanceled = fmt.Errorf("videotrack: canceled")

// Run executes the planned path to completion.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.Plan.CopyPath {
		return p.runCopy(ctx)
	}
	return p.runTranscode(ctx)
}

func (p *Pipeline) runCopy(ctx context.Context) error {
	src, err := p.Track.Packets(ctx)
	if err != nil {
		return fmt.Errorf("videotrack: opening packet source: %w", err)
	}
	defer src.Close()
	defer p.Sync.CloseTrack(p.TrackID)

	for {
		if p.Cancel.Load() {
			return ErrCanceled
		}
		pkt, ok, err := src.Next(ctx)
		if err != nil {
			return fmt.Errorf("videotrack: reading packet: %w", err)
		}
		if !ok {
			break
		}
		if pkt.Timestamp < p.TrimStart {
			continue
		}
		if pkt.Timestamp > p.TrimEnd {
			break
		}
		if p.Opts.Alpha == media.AlphaDiscard && len(pkt.SideData) > 0 {
			if _, hasAlpha := pkt.SideData["alpha"]; hasAlpha {
				pkt = pkt.Clone()
				delete(pkt.SideData, "alpha")
			}
		}
		if err := p.throttle(ctx, pkt.Timestamp); err != nil {
			return err
		}
		if err := p.Writer.WritePacket(ctx, pkt); err != nil {
			return fmt.Errorf("videotrack: writing packet: %w", err)
		}
		p.reportProgress(pkt.Timestamp)
	}
	return p.Writer.Close(ctx)
}

func (p *Pipeline) runTranscode(ctx context.Context) error {
	if !p.Track.CanDecode() {
		return fmt.Errorf("videotrack: source track is not decodable")
	}
	defer p.Sync.CloseTrack(p.TrackID)

	src, rerendering, err := p.openSampleSource(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	encoder, err := p.NewEncoder()
	if err != nil {
		return fmt.Errorf("videotrack: building encoder: %w", err)
	}
	defer encoder.Close()

	first, ok, err := src.Next(ctx)
	if err != nil {
		return fmt.Errorf("videotrack: decoding first sample: %w", err)
	}
	if ok && !rerendering && !p.Plan.NeedsRerender {
		probe, err := p.NewEncoder()
		if err != nil {
			return fmt.Errorf("videotrack: building probe encoder: %w", err)
		}
		_, probeErr := probe.Encode(ctx, first)
		probe.Close()
		if probeErr != nil {
			// Fall back to the rerender path: reopen through the canvas
			// collaborator (spec.md §4.5 "probe by attempting to encode
			// the first decoded sample ... on failure, force needs_rerender").
			src.Close()
			encoder.Close()
			src, err = p.openCanvasSource(ctx)
			if err != nil {
				return err
			}
			defer src.Close()
			encoder, err = p.NewEncoder()
			if err != nil {
				return fmt.Errorf("videotrack: rebuilding encoder for rerender: %w", err)
			}
			defer encoder.Close()
			first, ok, err = src.Next(ctx)
			if err != nil {
				return fmt.Errorf("videotrack: decoding first rerendered sample: %w", err)
			}
		}
	}

	var aligner *frameRateAligner
	if p.Opts.FrameRate > 0 {
		aligner = newFrameRateAligner(p.Opts.FrameRate)
	}

	emit := func(s media.VideoSample) error {
		samples := []media.VideoSample{s}
		if p.Opts.Process != nil {
			processed, err := p.Opts.Process(ctx, s)
			if err != nil {
				return fmt.Errorf("videotrack: process hook: %w", err)
			}
			samples = inheritTimestamps(processed, s)
		}
		for _, out := range samples {
			if p.Cancel.Load() {
				return ErrCanceled
			}
			if err := p.throttle(ctx, out.Timestamp); err != nil {
				return err
			}
			pkts, err := encoder.Encode(ctx, out)
			if err != nil {
				return fmt.Errorf("videotrack: encoding: %w", err)
			}
			if err := p.writePackets(ctx, pkts); err != nil {
				return err
			}
			p.reportProgress(out.Timestamp)
		}
		return nil
	}

	feed := func(s media.VideoSample) error {
		if aligner == nil {
			return emit(s)
		}
		for _, aligned := range aligner.Push(s) {
			if err := emit(aligned); err != nil {
				return err
			}
		}
		return nil
	}

	if ok {
		if err := feed(first); err != nil {
			return err
		}
	}
	for ok {
		if p.Cancel.Load() {
			return ErrCanceled
		}
		var sample media.VideoSample
		sample, ok, err = src.Next(ctx)
		if err != nil {
			return fmt.Errorf("videotrack: decoding sample: %w", err)
		}
		if !ok {
			break
		}
		if err := feed(sample); err != nil {
			return err
		}
	}

	if aligner != nil {
		for _, aligned := range aligner.Flush() {
			if err := emit(aligned); err != nil {
				return err
			}
		}
	}

	pkts, err := encoder.Flush(ctx)
	if err != nil {
		return fmt.Errorf("videotrack: flushing encoder: %w", err)
	}
	if err := p.writePackets(ctx, pkts); err != nil {
		return err
	}
	return p.Writer.Close(ctx)
}

func (p *Pipeline) openSampleSource(ctx context.Context) (media.VideoSampleSource, bool, error) {
	if p.Plan.NeedsRerender {
		src, err := p.openCanvasSource(ctx)
		return src, true, err
	}
	src, err := p.Track.VideoSamples(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("videotrack: opening sample source: %w", err)
	}
	return src, false, nil
}

func (p *Pipeline) openCanvasSource(ctx context.Context) (media.VideoSampleSource, error) {
	req := media.CanvasRequest{
		Width:    p.Plan.TargetWidth,
		Height:   p.Plan.TargetHeight,
		Fit:      p.Opts.Fit,
		Rotation: p.Plan.TotalRotation,
		Crop:     p.Opts.Crop,
		Alpha:    p.Opts.Alpha,
	}
	src, err := p.Track.Canvas(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("videotrack: opening canvas source: %w", err)
	}
	return src, nil
}

func (p *Pipeline) throttle(ctx context.Context, ts float64) error {
	if p.Sync.ShouldWait(p.TrackID, ts) {
		return p.Sync.Wait(ctx, ts)
	}
	return nil
}

func (p *Pipeline) writePackets(ctx context.Context, pkts []media.Packet) error {
	for _, pkt := range pkts {
		if err := p.Writer.WritePacket(ctx, pkt); err != nil {
			return fmt.Errorf("videotrack: writing packet: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) reportProgress(ts float64) {
	if p.OnProgress != nil {
		p.OnProgress(ts)
	}
}

// inheritTimestamps applies spec.md §4.5's "non-timestamped returns
// inherit source timestamp/duration" rule: a processed sample whose
// Timestamp and Duration are both the zero value takes the originating
// sample's.
func inheritTimestamps(processed []media.VideoSample, source media.VideoSample) []media.VideoSample {
	out := make([]media.VideoSample, len(processed))
	for i, s := range processed {
		if s.Timestamp == 0 && s.Duration == 0 {
			s.Timestamp = source.Timestamp
			s.Duration = source.Duration
		}
		out[i] = s
	}
	return out
}

// frameRateAligner implements spec.md §4.5's frame-rate enforcement:
// align each sample to floor(ts*r)/r, drop samples that land on or
// behind the last aligned timestamp, and repeat the previous sample to
// pad any gap wider than one frame.
type frameRateAligner struct {
	rate          float64
	haveLast      bool
	lastAlignedTS float64
	lastSample    media.VideoSample
	lastRawEnd    float64
}

func newFrameRateAligner(rate float64) *frameRateAligner {
	return &frameRateAligner{rate: rate}
}

func (a *frameRateAligner) Push(s media.VideoSample) []media.VideoSample {
	a.lastRawEnd = s.Timestamp + s.Duration
	alignedTS := math.Floor(s.Timestamp*a.rate) / a.rate
	if a.haveLast && alignedTS <= a.lastAlignedTS {
		return nil
	}

	var out []media.VideoSample
	if a.haveLast {
		k := int(math.Round((alignedTS - a.lastAlignedTS) * a.rate))
		for j := 1; j < k; j++ {
			pad := a.lastSample
			pad.Timestamp = a.lastAlignedTS + float64(j)/a.rate
			pad.Duration = 1 / a.rate
			out = append(out, pad)
		}
	}

	aligned := s
	aligned.Timestamp = alignedTS
	aligned.Duration = 1 / a.rate
	out = append(out, aligned)

	a.haveLast = true
	a.lastAlignedTS = alignedTS
	a.lastSample = aligned
	return out
}

// Flush pads the tail out to floor(last_end_ts*r)/r (spec.md §4.5,
// keeping floor semantics per §9's open question).
func (a *frameRateAligner) Flush() []media.VideoSample {
	if !a.haveLast {
		return nil
	}
	tail := math.Floor(a.lastRawEnd*a.rate) / a.rate
	if tail <= a.lastAlignedTS {
		return nil
	}
	k := int(math.Round((tail - a.lastAlignedTS) * a.rate))
	var out []media.VideoSample
	for j := 1; j <= k; j++ {
		pad := a.lastSample
		pad.Timestamp = a.lastAlignedTS + float64(j)/a.rate
		pad.Duration = 1 / a.rate
		out = append(out, pad)
	}
	return out
}
