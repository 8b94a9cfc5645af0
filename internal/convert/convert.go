// Package convert implements the conversion orchestrator (spec.md
// §4.7): validates options, plans every input track, drives the
// resulting per-track pipelines concurrently, reports progress, and
// supports cooperative cancellation.
package convert

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jota2rz/vdj-video-sync/server/internal/audiotrack"
	"github.com/jota2rz/vdj-video-sync/server/internal/capability"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
	"github.com/jota2rz/vdj-video-sync/server/internal/metrics"
	"github.com/jota2rz/vdj-video-sync/server/internal/syncer"
	"github.com/jota2rz/vdj-video-sync/server/internal/videotrack"
	"golang.org/x/sync/errgroup"
)

// State is the orchestrator's lifecycle (spec.md §4.7).
type State int

const (
	StatePlanning State = iota
	StateReady
	StateExecuting
	StateFinalized
	StateCanceled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateFinalized:
		return "finalized"
	case StateCanceled:
		return "canceled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type trackJob struct {
	id        int
	typ       media.TrackType
	track     media.InputTrack
	videoPlan videotrack.Plan
	videoOpts videotrack.Options
	audioPlan audiotrack.Plan
	audioOpts audiotrack.Options
	writer    media.TrackWriter
}

// Conversion is one planned, and optionally executed, conversion
// (spec.md §3 "Conversion state", §4.7).
type Conversion struct {
	ID uuid.UUID

	opts ConversionOptions

	mu    sync.Mutex
	state State

	utilized      []*trackJob
	discarded     []media.DiscardedTrack
	isValid       bool
	invalidReason string

	totalDuration float64

	canceled atomic.Bool
	executed atomic.Bool

	progress    *progressTracker
	sync        *syncer.Synchronizer
	videoProber *capability.Prober
	audioProber *capability.Prober
}

// New validates opts and plans every input track (spec.md §4.7 "init").
// The returned Conversion is in state Ready (valid or not); call
// IsValid before Execute.
func New(ctx context.Context, opts ConversionOptions) (*Conversion, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	c := &Conversion{
		ID:          uuid.New(),
		opts:        opts,
		sync:        syncer.New(),
		videoProber: capability.NewProber(opts.VideoBackend, opts.CustomBackends...),
		audioProber: capability.NewProber(opts.AudioBackend, opts.CustomBackends...),
	}

	duration, err := opts.Input.ComputeDuration(ctx)
	if err != nil {
		return nil, fmt.Errorf("convert: computing input duration: %w", err)
	}
	trimEnd := opts.trimEnd()
	if trimEnd > duration {
		trimEnd = duration
	}
	c.totalDuration = math.Max(0, math.Min(duration-opts.Trim.Start, trimEnd-opts.Trim.Start))

	counts := opts.Output.Format().SupportedTrackCounts()
	var addedTotal, addedVideo, addedAudio int
	var videoN, audioN int

	for _, track := range opts.Input.Tracks() {
		switch track.Type() {
		case media.TrackVideo:
			videoN++
			vopts := opts.videoOptionsFor(track, videoN)
			firstPTS, err := track.FirstTimestamp(ctx)
			if err != nil {
				return nil, fmt.Errorf("convert: reading first timestamp: %w", err)
			}
			plan := videotrack.PlanTrack(ctx, videotrack.PlanInputs{
				Track: track, Opts: vopts, OutFormat: opts.Output.Format(),
				Prober: c.videoProber, TrimStart: opts.Trim.Start, FirstPTS: firstPTS,
			})
			if plan.Discarded {
				c.discarded = append(c.discarded, media.DiscardedTrack{TrackID: track.ID(), Type: media.TrackVideo, Reason: plan.DiscardReason, Codec: track.VideoCodec().String()})
				continue
			}
			ok, reason := acceptTrack(counts, media.TrackVideo, &addedTotal, &addedVideo, &addedAudio)
			if !ok {
				c.discarded = append(c.discarded, media.DiscardedTrack{TrackID: track.ID(), Type: media.TrackVideo, Reason: reason, Codec: track.VideoCodec().String()})
				continue
			}
			c.utilized = append(c.utilized, &trackJob{id: track.ID(), typ: media.TrackVideo, track: track, videoPlan: plan, videoOpts: vopts})

		case media.TrackAudio:
			audioN++
			aopts := opts.audioOptionsFor(track, audioN)
			firstPTS, err := track.FirstTimestamp(ctx)
			if err != nil {
				return nil, fmt.Errorf("convert: reading first timestamp: %w", err)
			}
			plan := audiotrack.PlanTrack(ctx, audiotrack.PlanInputs{
				Track: track, Opts: aopts, OutFormat: opts.Output.Format(),
				Prober: c.audioProber, TrimStart: opts.Trim.Start, FirstPTS: firstPTS,
			})
			if plan.Discarded {
				c.discarded = append(c.discarded, media.DiscardedTrack{TrackID: track.ID(), Type: media.TrackAudio, Reason: plan.DiscardReason, Codec: track.AudioCodec().String()})
				continue
			}
			ok, reason := acceptTrack(counts, media.TrackAudio, &addedTotal, &addedVideo, &addedAudio)
			if !ok {
				c.discarded = append(c.discarded, media.DiscardedTrack{TrackID: track.ID(), Type: media.TrackAudio, Reason: reason, Codec: track.AudioCodec().String()})
				continue
			}
			c.utilized = append(c.utilized, &trackJob{id: track.ID(), typ: media.TrackAudio, track: track, audioPlan: plan, audioOpts: aopts})

		default:
			// Subtitle/unknown track types have no pipeline in this
			// repository (spec.md §1/§4 define only video and audio
			// track pipelines); they are always discarded.
			c.discarded = append(c.discarded, media.DiscardedTrack{TrackID: track.ID(), Type: track.Type(), Reason: media.DiscardUnknown})
		}
	}

	c.isValid = addedTotal >= counts.Total.Min &&
		addedVideo >= counts.Video.Min &&
		addedAudio >= counts.Audio.Min
	if !c.isValid {
		c.invalidReason = describeInvalidity(c.discarded, counts, addedVideo, addedAudio)
	}

	c.state = StateReady
	c.progress = newProgressTracker(c.totalDuration, opts.OnProgress)

	for _, d := range c.discarded {
		metrics.TracksDiscarded.WithLabelValues(d.Type.String(), d.Reason.String()).Inc()
	}
	for _, job := range c.utilized {
		path := "transcode"
		if (job.typ == media.TrackVideo && job.videoPlan.CopyPath) || (job.typ == media.TrackAudio && job.audioPlan.CopyPath) {
			path = "copy"
		}
		metrics.TracksUtilized.WithLabelValues(job.typ.String(), path).Inc()
	}

	return c, nil
}

// acceptTrack applies spec.md §3's track-count invariants, returning
// false with the reason to discard if adding this track would violate
// them. A Max of 0 means unbounded.
func acceptTrack(counts media.TrackCounts, typ media.TrackType, addedTotal, addedVideo, addedAudio *int) (bool, media.DiscardReason) {
	var typeMax int
	var typeCount *int
	switch typ {
	case media.TrackVideo:
		typeMax, typeCount = counts.Video.Max, addedVideo
	case media.TrackAudio:
		typeMax, typeCount = counts.Audio.Max, addedAudio
	}
	if typeMax > 0 && *typeCount+1 > typeMax {
		return false, media.DiscardMaxTrackCountOfTypeReached
	}
	if counts.Total.Max > 0 && *addedTotal+1 > counts.Total.Max {
		return false, media.DiscardMaxTrackCountReached
	}
	*typeCount++
	*addedTotal++
	return true, media.DiscardUnknown
}

// describeInvalidity names the codec(s) of whichever discarded tracks
// left a required minimum unmet, so ErrConversionNotValid can say why
// instead of just that (spec.md §8 Scenario 6, "names the codec").
func describeInvalidity(discarded []media.DiscardedTrack, counts media.TrackCounts, addedVideo, addedAudio int) string {
	var videoCodecs, audioCodecs []string
	for _, d := range discarded {
		if d.Reason != media.DiscardNoEncodableTargetCodec && d.Reason != media.DiscardUndecodableSourceCodec && d.Reason != media.DiscardUnknownSourceCodec {
			continue
		}
		switch d.Type {
		case media.TrackVideo:
			if addedVideo < counts.Video.Min {
				videoCodecs = append(videoCodecs, d.Codec)
			}
		case media.TrackAudio:
			if addedAudio < counts.Audio.Min {
				audioCodecs = append(audioCodecs, d.Codec)
			}
		}
	}
	switch {
	case len(videoCodecs) > 0:
		return fmt.Sprintf("no output track satisfies the required video minimum (discarded codec(s): %s)", strings.Join(videoCodecs, ", "))
	case len(audioCodecs) > 0:
		return fmt.Sprintf("no output track satisfies the required audio minimum (discarded codec(s): %s)", strings.Join(audioCodecs, ", "))
	default:
		return ""
	}
}

// IsValid reports spec.md §3's is_valid.
func (c *Conversion) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isValid
}

// ValidationError returns why IsValid is false, naming the discarded
// track(s) and codec(s) responsible when known, or nil if the
// conversion is valid.
func (c *Conversion) ValidationError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isValid {
		return nil
	}
	if c.invalidReason != "" {
		return fmt.Errorf("%w: %s", ErrConversionNotValid, c.invalidReason)
	}
	return ErrConversionNotValid
}

// State returns the current lifecycle state.
func (c *Conversion) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DiscardedTracks returns every track dropped during planning.
func (c *Conversion) DiscardedTracks() []media.DiscardedTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]media.DiscardedTrack(nil), c.discarded...)
}

// Execute requires IsValid and runs the conversion to completion
// (spec.md §4.7 "execute"). It is not safe to call concurrently with
// itself on the same Conversion.
func (c *Conversion) Execute(ctx context.Context) error {
	c.mu.Lock()
	if c.executed.Load() {
		c.mu.Unlock()
		return ErrConversionAlreadyExecuted
	}
	if c.state != StateReady || !c.isValid {
		reason := c.invalidReason
		c.mu.Unlock()
		if reason != "" {
			return fmt.Errorf("%w: %s", ErrConversionNotValid, reason)
		}
		return ErrConversionNotValid
	}
	c.executed.Store(true)
	c.state = StateExecuting
	c.mu.Unlock()

	metrics.ConversionsStarted.Inc()
	start := time.Now()
	defer func() {
		metrics.ConversionDuration.Observe(time.Since(start).Seconds())
		metrics.ConversionsFinished.WithLabelValues(c.State().String()).Inc()
	}()

	if err := c.opts.Output.Start(ctx); err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("convert: starting output: %w", err)
	}

	if err := c.applyTags(ctx); err != nil {
		c.cancelOutput()
		c.setState(StateFailed)
		return err
	}

	if err := c.addOutputTracks(); err != nil {
		c.cancelOutput()
		c.setState(StateFailed)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range c.utilized {
		job := job
		g.Go(func() error { return c.runJob(gctx, job) })
	}

	if err := g.Wait(); err != nil {
		wasCanceled := c.canceled.Load()
		c.cancelOutput()
		if wasCanceled {
			c.setState(StateCanceled)
			return ErrConversionCanceled
		}
		c.setState(StateFailed)
		return err
	}

	if err := c.opts.Output.Finalize(ctx); err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("convert: finalizing output: %w", err)
	}
	c.progress.Complete()
	c.setState(StateFinalized)
	return nil
}

// Cancel is idempotent: a no-op once finalized/canceled/failed,
// otherwise it sets the shared cancellation flag and tears down the
// output (spec.md §4.7 "cancel").
func (c *Conversion) Cancel() error {
	c.mu.Lock()
	switch c.state {
	case StateFinalized, StateCanceled, StateFailed:
		c.mu.Unlock()
		return nil
	}
	wasExecuting := c.state == StateExecuting
	c.mu.Unlock()

	if !c.canceled.CompareAndSwap(false, true) {
		return nil
	}
	if wasExecuting {
		_ = c.opts.Output.Cancel()
	}
	c.setState(StateCanceled)
	return nil
}

func (c *Conversion) setState(s State) {
	c.mu.Lock()
	if c.state != StateFinalized && c.state != StateCanceled {
		c.state = s
	}
	c.mu.Unlock()
}

func (c *Conversion) cancelOutput() {
	if c.canceled.CompareAndSwap(false, true) {
		_ = c.opts.Output.Cancel()
	}
}

// applyTags implements spec.md §4.7's metadata tags rule.
func (c *Conversion) applyTags(ctx context.Context) error {
	tags := c.opts.Input.MetadataTags()
	if c.opts.Tags != nil {
		out, err := c.opts.Tags(ctx, tags)
		if err != nil {
			return fmt.Errorf("convert: tags hook: %w", err)
		}
		tags = out
	}
	if err := c.opts.Output.SetMetadataTags(ctx, tags); err != nil {
		return fmt.Errorf("convert: setting output tags: %w", err)
	}
	return nil
}

func (c *Conversion) addOutputTracks() error {
	for _, job := range c.utilized {
		switch job.typ {
		case media.TrackVideo:
			cfg := media.VideoTrackConfig{
				Codec:         job.videoPlan.Codec,
				Width:         job.videoPlan.TargetWidth,
				Height:        job.videoPlan.TargetHeight,
				FrameRate:     job.videoOpts.FrameRate,
				Rotation:      videoOutputRotation(job.videoPlan),
				Language:      validLanguageOrEmpty(job.track.LanguageCode()),
				Name:          job.track.Name(),
				Disposition:   job.track.Disposition(),
				DecoderConfig: job.track.DecoderConfig(),
			}
			w, err := c.opts.Output.AddVideoTrack(cfg)
			if err != nil {
				return fmt.Errorf("convert: adding video track: %w", err)
			}
			job.writer = w
		case media.TrackAudio:
			cfg := media.AudioTrackConfig{
				Codec:         job.audioPlan.Codec,
				SampleRate:    job.audioPlan.TargetRate,
				Channels:      job.audioPlan.TargetChannels,
				Language:      validLanguageOrEmpty(job.track.LanguageCode()),
				Name:          job.track.Name(),
				Disposition:   job.track.Disposition(),
				DecoderConfig: job.track.DecoderConfig(),
			}
			w, err := c.opts.Output.AddAudioTrack(cfg)
			if err != nil {
				return fmt.Errorf("convert: adding audio track: %w", err)
			}
			job.writer = w
		}
	}
	return nil
}

func (c *Conversion) runJob(ctx context.Context, job *trackJob) error {
	switch job.typ {
	case media.TrackVideo:
		p := &videotrack.Pipeline{
			TrackID:    job.id,
			Track:      job.track,
			Plan:       job.videoPlan,
			Opts:       job.videoOpts,
			Writer:     job.writer,
			Sync:       c.sync,
			TrimStart:  c.opts.Trim.Start,
			TrimEnd:    c.opts.trimEnd(),
			Cancel:     &c.canceled,
			OnProgress: func(ts float64) { c.progress.Update(job.id, ts) },
			NewEncoder: func() (media.VideoEncoder, error) { return c.newVideoEncoder(job.videoPlan, job.videoOpts) },
		}
		return p.Run(ctx)
	case media.TrackAudio:
		p := &audiotrack.Pipeline{
			TrackID:    job.id,
			Track:      job.track,
			Plan:       job.audioPlan,
			Opts:       job.audioOpts,
			Writer:     job.writer,
			Sync:       c.sync,
			TrimStart:  c.opts.Trim.Start,
			TrimEnd:    c.opts.trimEnd(),
			Cancel:     &c.canceled,
			OnProgress: func(ts float64) { c.progress.Update(job.id, ts) },
			NewEncoder: func() (media.AudioEncoder, error) { return c.newAudioEncoder(job.audioPlan) },
		}
		return p.Run(ctx)
	default:
		return fmt.Errorf("convert: unsupported track type %v", job.typ)
	}
}

func (c *Conversion) newVideoEncoder(plan videotrack.Plan, opts videotrack.Options) (media.VideoEncoder, error) {
	encOpts := media.VideoEncoderOptions{
		SizeChangeBehavior:   sizeChangeFromFit(opts.Fit),
		KeyFrameInterval:     opts.KeyFrameInterval,
		HardwareAcceleration: opts.HardwareAcceleration,
	}
	for _, cb := range c.opts.CustomBackends {
		if cb.CanEncodeVideo(plan.Codec, plan.TargetWidth, plan.TargetHeight, plan.Bitrate, encOpts) {
			return cb.NewVideoEncoder(plan.Codec, plan.TargetWidth, plan.TargetHeight, plan.Bitrate, encOpts)
		}
	}
	if c.opts.VideoBackend == nil {
		return nil, fmt.Errorf("convert: no video encoder backend configured")
	}
	return c.opts.VideoBackend.NewVideoEncoder(plan.Codec, plan.TargetWidth, plan.TargetHeight, plan.Bitrate, encOpts)
}

func (c *Conversion) newAudioEncoder(plan audiotrack.Plan) (media.AudioEncoder, error) {
	for _, cb := range c.opts.CustomBackends {
		if cb.CanEncodeAudio(plan.Codec, plan.TargetChannels, plan.TargetRate, plan.Bitrate) {
			return cb.NewAudioEncoder(plan.Codec, plan.TargetChannels, plan.TargetRate, plan.Bitrate)
		}
	}
	if c.opts.AudioBackend == nil {
		return nil, fmt.Errorf("convert: no audio encoder backend configured")
	}
	return c.opts.AudioBackend.NewAudioEncoder(plan.Codec, plan.TargetChannels, plan.TargetRate, plan.Bitrate)
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

func videoOutputRotation(plan videotrack.Plan) int {
	if plan.NeedsRerender {
		return 0
	}
	return plan.TotalRotation
}

// validLanguageOrEmpty enforces spec.md §8's "emitted language is in
// ISO 639-2 or omitted" invariant: a lowercase three-letter code, or
// empty.
func validLanguageOrEmpty(code string) string {
	if len(code) != 3 {
		return ""
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return code
}
