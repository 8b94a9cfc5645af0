package audiotrack

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jota2rz/vdj-video-sync/server/internal/media"
	"github.com/jota2rz/vdj-video-sync/server/internal/resample"
	"github.com/jota2rz/vdj-video-sync/server/internal/syncer"
)

// Pipeline drives one audio track end to end (spec.md §4.6).
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
	// TargetChannels/TargetRate/Bitrate. Unused on the copy path.
	NewEncoder func() (media.AudioEncoder, error)
}

// ErrCanceled is returned by Run when the shared cancellation flag was
// observed set (spec.md §5).
var ErrCanceled = fmt.Errorf("audiotrack: canceled")

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
		return fmt.Errorf("audiotrack: opening packet source: %w", err)
	}
	defer src.Close()
	defer p.Sync.CloseTrack(p.TrackID)

	for {
		if p.Cancel.Load() {
			return ErrCanceled
		}
		pkt, ok, err := src.Next(ctx)
		if err != nil {
			return fmt.Errorf("audiotrack: reading packet: %w", err)
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
		if err := p.throttle(ctx, pkt.Timestamp); err != nil {
			return err
		}
		if err := p.Writer.WritePacket(ctx, pkt); err != nil {
			return fmt.Errorf("audiotrack: writing packet: %w", err)
		}
		p.reportProgress(pkt.Timestamp)
	}
	return p.Writer.Close(ctx)
}

func (p *Pipeline) runTranscode(ctx context.Context) error {
	if !p.Track.CanDecode() {
		return fmt.Errorf("audiotrack: source track is not decodable")
	}
	defer p.Sync.CloseTrack(p.TrackID)

	src, err := p.Track.AudioSamples(ctx)
	if err != nil {
		return fmt.Errorf("audiotrack: opening sample source: %w", err)
	}
	defer src.Close()

	encoder, err := p.NewEncoder()
	if err != nil {
		return fmt.Errorf("audiotrack: building encoder: %w", err)
	}
	defer encoder.Close()

	var resampler *resample.Resampler
	if p.Plan.NeedsResample {
		trimEnd := p.TrimEnd
		resampler = resample.New(p.Plan.TargetRate, p.Plan.TargetChannels, p.TrimStart, trimEnd)
	}

	emit := func(s media.AudioSample) error {
		samples := []media.AudioSample{s}
		if p.Opts.Process != nil {
			processed, err := p.Opts.Process(ctx, s)
			if err != nil {
				return fmt.Errorf("audiotrack: process hook: %w", err)
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
				return fmt.Errorf("audiotrack: encoding: %w", err)
			}
			if err := p.writePackets(ctx, pkts); err != nil {
				return err
			}
			p.reportProgress(out.Timestamp)
		}
		return nil
	}

	feed := func(s media.AudioSample) error {
		if resampler == nil {
			return emit(s)
		}
		windows, err := resampler.Write(s)
		if err != nil {
			return fmt.Errorf("audiotrack: resampling: %w", err)
		}
		for _, w := range windows {
			if err := emit(w); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		if p.Cancel.Load() {
			return ErrCanceled
		}
		sample, ok, err := src.Next(ctx)
		if err != nil {
			return fmt.Errorf("audiotrack: decoding sample: %w", err)
		}
		if !ok {
			break
		}
		if err := feed(sample); err != nil {
			return err
		}
	}

	if resampler != nil {
		for _, w := range resampler.Finalize() {
			if err := emit(w); err != nil {
				return err
			}
		}
	}

	pkts, err := encoder.Flush(ctx)
	if err != nil {
		return fmt.Errorf("audiotrack: flushing encoder: %w", err)
	}
	if err := p.writePackets(ctx, pkts); err != nil {
		return err
	}
	return p.Writer.Close(ctx)
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
			return fmt.Errorf("audiotrack: writing packet: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) reportProgress(ts float64) {
	if p.OnProgress != nil {
		p.OnProgress(ts)
	}
}

// inheritTimestamps mirrors spec.md §4.5's rule (reused for audio by
// §4.6): a processed sample whose Timestamp is the zero value and whose
// SampleRate is unset (so it has no derivable duration) takes the
// originating sample's timestamp, sample rate and channel count.
func inheritTimestamps(processed []media.AudioSample, source media.AudioSample) []media.AudioSample {
	out := make([]media.AudioSample, len(processed))
	for i, s := range processed {
		if s.Timestamp == 0 && s.SampleRate == 0 {
			s.Timestamp = source.Timestamp
			s.SampleRate = source.SampleRate
			s.Channels = source.Channels
		}
		out[i] = s
	}
	return out
}
