// Package resample implements the streaming audio resampler and
// channel remixer (spec.md §4.4): linear interpolation against a fixed
// ring buffer of output frames, with overlap-add accumulation so a
// single source sample can contribute to more than one emitted window.
//
// The accumulate-then-emit buffer shape follows the decode-loop state
// internal/bpm.AnalyseFile keeps across chunk boundaries in the teacher
// repo; the interpolate-and-accumulate style is grounded in the
// haivivi-giztoy PCM mixer's int16/float32 accumulation loop.
package resample

import (
	"fmt"
	"math"

	"github.com/jota2rz/vdj-video-sync/server/internal/media"
)

// windowSeconds sizes the output ring buffer: spec.md §4.4 fixes it at
// 5 seconds of target-rate frames.
const windowSeconds = 5

// Resampler converts a stream of AudioSamples at an arbitrary, but
// fixed-once-observed, source rate/channel count into one at a fixed
// target rate/channel count, trimmed to [globalStart, globalEnd) in the
// source (pre-normalization) timebase. The zero value is not usable;
// use New.
type Resampler struct {
	targetRate     int
	targetChannels int
	globalStart    float64
	globalEnd      float64

	bufferSize       int // frames
	buffer           []float32
	bufferStartFrame int64
	maxWrittenFrame  int64 // -1 when the buffer holds nothing

	configured     bool
	sourceRate     int
	sourceChannels int
	matrix         [][]float32 // targetChannels x sourceChannels

	scratch []float32 // reused across Write calls
}

// New creates a Resampler targeting targetRate/targetChannels, emitting
// only the portion of the stream within [globalStart, globalEnd)
// (spec.md §4.4's trim window). Pass math.Inf(1) for globalEnd when the
// track has no end trim.
func New(targetRate, targetChannels int, globalStart, globalEnd float64) *Resampler {
	bufferSize := windowSeconds * targetRate
	return &Resampler{
		targetRate:       targetRate,
		targetChannels:   targetChannels,
		globalStart:      globalStart,
		globalEnd:        globalEnd,
		bufferSize:       bufferSize,
		buffer:           make([]float32, bufferSize*targetChannels),
		bufferStartFrame: 0,
		maxWrittenFrame:  -1,
	}
}

// SourceRate reports the source sample rate detected from the first
// sample written, or 0 if nothing has been written yet.
func (r *Resampler) SourceRate() int { return r.sourceRate }

// SourceChannels reports the source channel count detected from the
// first sample written, or 0 if nothing has been written yet.
func (r *Resampler) SourceChannels() int { return r.sourceChannels }

// Write feeds one decoded source chunk into the resampler and returns
// any output windows that became fully determined and were evicted
// from the ring buffer as a result (spec.md §4.4). The source rate and
// channel count are fixed by the first sample written; later samples
// must match.
func (r *Resampler) Write(sample media.AudioSample) ([]media.AudioSample, error) {
	if err := r.ensureConfigured(sample); err != nil {
		return nil, err
	}

	nFrames := sample.Frames()
	if nFrames == 0 {
		return nil, nil
	}
	r.loadScratch(sample, nFrames)

	inStart := sample.Timestamp - r.globalStart
	inEnd := math.Min(inStart+float64(nFrames)/float64(r.sourceRate), r.globalEnd-r.globalStart)
	if inEnd <= inStart {
		return nil, nil
	}

	outLo := int64(math.Floor(inStart * float64(r.targetRate)))
	outHi := int64(math.Ceil(inEnd * float64(r.targetRate)))

	var emitted []media.AudioSample
	for f := outLo; f < outHi; f++ {
		if f < r.bufferStartFrame {
			continue
		}
		for f >= r.bufferStartFrame+int64(r.bufferSize) {
			if s, ok := r.evictCurrentBuffer(); ok {
				emitted = append(emitted, s)
			}
			r.bufferStartFrame += int64(r.bufferSize)
		}
		r.accumulateFrame(f, inStart, nFrames)
	}
	return emitted, nil
}

// Finalize flushes any partially-filled trailing window. Call once
// after the last Write for a track.
func (r *Resampler) Finalize() []media.AudioSample {
	if s, ok := r.evictCurrentBuffer(); ok {
		return []media.AudioSample{s}
	}
	return nil
}

func (r *Resampler) ensureConfigured(sample media.AudioSample) error {
	if !r.configured {
		r.sourceRate = sample.SampleRate
		r.sourceChannels = sample.Channels
		r.matrix = selectMixMatrix(r.sourceChannels, r.targetChannels)
		r.configured = true
		return nil
	}
	if sample.SampleRate != r.sourceRate || sample.Channels != r.sourceChannels {
		return fmt.Errorf("resample: source format changed mid-stream (rate %d->%d, channels %d->%d)",
			r.sourceRate, sample.SampleRate, r.sourceChannels, sample.Channels)
	}
	return nil
}

func (r *Resampler) loadScratch(sample media.AudioSample, nFrames int) {
	need := nFrames * r.sourceChannels
	if cap(r.scratch) < need {
		r.scratch = make([]float32, need)
	}
	r.scratch = r.scratch[:need]
	copy(r.scratch, sample.Data[:need])
}

// accumulateFrame computes output frame f by linear interpolation
// against the current scratch buffer and overlap-adds it into the ring
// buffer.
func (r *Resampler) accumulateFrame(f int64, inStart float64, nFrames int) {
	outT := float64(f) / float64(r.targetRate)
	srcPos := (outT - inStart) * float64(r.sourceRate)
	lo := int(math.Floor(srcPos))
	hi := int(math.Ceil(srcPos))
	frac := float32(srcPos - float64(lo))

	frel := f - r.bufferStartFrame
	base := int(frel) * r.targetChannels
	for c := 0; c < r.targetChannels; c++ {
		sLo := r.mixAt(lo, c, nFrames)
		sHi := r.mixAt(hi, c, nFrames)
		r.buffer[base+c] += sLo*(1-frac) + sHi*frac
	}
	if frel > r.maxWrittenFrame {
		r.maxWrittenFrame = frel
	}
}

// mixAt returns target channel c's value at source frame index,
// treating out-of-range indices (including the negative/overflow edges
// linear interpolation produces at chunk boundaries) as silence.
func (r *Resampler) mixAt(index, c, nFrames int) float32 {
	if index < 0 || index >= nFrames {
		return 0
	}
	row := r.matrix[c]
	base := index * r.sourceChannels
	var v float32
	for sc, w := range row {
		if w == 0 {
			continue
		}
		v += w * r.scratch[base+sc]
	}
	return v
}

// evictCurrentBuffer emits the buffer's contents as an AudioSample and
// resets it, or reports false if nothing was ever written into it.
func (r *Resampler) evictCurrentBuffer() (media.AudioSample, bool) {
	if r.maxWrittenFrame < 0 {
		return media.AudioSample{}, false
	}
	length := int(r.maxWrittenFrame+1) * r.targetChannels
	data := make([]float32, length)
	copy(data, r.buffer[:length])

	out := media.AudioSample{
		Timestamp:  float64(r.bufferStartFrame) / float64(r.targetRate),
		Format:     media.FormatF32,
		SampleRate: r.targetRate,
		Channels:   r.targetChannels,
		Data:       data,
	}

	for i := range r.buffer {
		r.buffer[i] = 0
	}
	r.maxWrittenFrame = -1
	return out, true
}
