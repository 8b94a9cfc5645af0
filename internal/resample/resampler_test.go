package resample

import (
	"math"
	"testing"

	"github.com/jota2rz/vdj-video-sync/server/internal/media"
	"github.com/stretchr/testify/require"
)

func sineMono(rate int, startFrame, nFrames int, freq float64) []float32 {
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		t := float64(startFrame+i) / float64(rate)
		out[i] = float32(math.Sin(2 * math.Pi * freq * t))
	}
	return out
}

func TestResampler_IdentityRateAndChannelsPassesThrough(t *testing.T) {
	const rate = 48000
	r := New(rate, 1, 0, math.Inf(1))

	data := sineMono(rate, 0, rate, 440)
	emitted, err := r.Write(media.AudioSample{
		Timestamp: 0, Format: media.FormatF32, SampleRate: rate, Channels: 1, Data: data,
	})
	require.NoError(t, err)
	require.Empty(t, emitted) // exactly one second fits the 5s window, no eviction yet

	tail := r.Finalize()
	require.Len(t, tail, 1)
	require.Equal(t, rate, tail[0].Frames())
	require.InDelta(t, data[100], tail[0].Data[100], 0.01)
}

func TestResampler_UpsampleDoublesFrameCount(t *testing.T) {
	r := New(96000, 1, 0, math.Inf(1))
	data := sineMono(48000, 0, 48000, 220)
	_, err := r.Write(media.AudioSample{
		Timestamp: 0, Format: media.FormatF32, SampleRate: 48000, Channels: 1, Data: data,
	})
	require.NoError(t, err)

	tail := r.Finalize()
	require.Len(t, tail, 1)
	require.InDelta(t, 96000, tail[0].Frames(), 2)
}

func TestResampler_GlobalTrimDropsOutOfWindowFrames(t *testing.T) {
	const rate = 48000
	r := New(rate, 1, 1.0, 2.0) // keep only [1s, 2s) of source time
	data := sineMono(rate, 0, 3*rate, 300)
	emitted, err := r.Write(media.AudioSample{
		Timestamp: 0, Format: media.FormatF32, SampleRate: rate, Channels: 1, Data: data,
	})
	require.NoError(t, err)
	require.Empty(t, emitted)

	tail := r.Finalize()
	require.Len(t, tail, 1)
	require.InDelta(t, rate, tail[0].Frames(), 2)
}

func TestResampler_BufferRolloverEmitsWindows(t *testing.T) {
	const rate = 1000 // small rate keeps the 5s window (5000 frames) easy to exceed
	r := New(rate, 1, 0, math.Inf(1))

	data := sineMono(rate, 0, 12*rate, 10) // 12 seconds: spans three 5s windows
	emitted, err := r.Write(media.AudioSample{
		Timestamp: 0, Format: media.FormatF32, SampleRate: rate, Channels: 1, Data: data,
	})
	require.NoError(t, err)
	require.Len(t, emitted, 2) // two full 5s windows evicted mid-stream

	tail := r.Finalize()
	require.Len(t, tail, 1) // trailing 2s partial window
	require.InDelta(t, 2*rate, tail[0].Frames(), 2)
}

func TestResampler_MismatchedSourceFormatErrors(t *testing.T) {
	r := New(48000, 2, 0, math.Inf(1))
	_, err := r.Write(media.AudioSample{
		Timestamp: 0, Format: media.FormatF32, SampleRate: 48000, Channels: 2,
		Data: make([]float32, 2*480),
	})
	require.NoError(t, err)

	_, err = r.Write(media.AudioSample{
		Timestamp: 0.01, Format: media.FormatF32, SampleRate: 44100, Channels: 2,
		Data: make([]float32, 2*441),
	})
	require.Error(t, err)
}

// TestResampler_5_1ToStereoDownmix exercises spec.md §8's worked example:
// L' = L + √½·(C + SL), R' = R + √½·(C + SR), decoded at 48000 Hz.
func TestResampler_5_1ToStereoDownmix(t *testing.T) {
	const rate = 48000
	r := New(rate, 2, 0, math.Inf(1))

	const nFrames = 480
	data := make([]float32, nFrames*6)
	// Constant per-channel values so the expected mix is trivial to check:
	// L=1, R=2, C=3, LFE=99 (must be ignored), SL=4, SR=5.
	for i := 0; i < nFrames; i++ {
		base := i * 6
		data[base+0] = 1
		data[base+1] = 2
		data[base+2] = 3
		data[base+3] = 99
		data[base+4] = 4
		data[base+5] = 5
	}

	_, err := r.Write(media.AudioSample{
		Timestamp: 0, Format: media.FormatF32, SampleRate: rate, Channels: 6, Data: data,
	})
	require.NoError(t, err)

	tail := r.Finalize()
	require.Len(t, tail, 1)

	wantL := float32(1 + sqrtHalf*(3+4))
	wantR := float32(2 + sqrtHalf*(3+5))

	// Interior frames are unaffected by the interpolation edge effects
	// at the chunk boundary; sample one well inside the chunk.
	idx := 200 * 2
	require.InDelta(t, wantL, tail[0].Data[idx], 0.01)
	require.InDelta(t, wantR, tail[0].Data[idx+1], 0.01)
}

func TestResampler_DiscreteFallbackForNonStandardChannelCounts(t *testing.T) {
	r := New(48000, 3, 0, math.Inf(1))
	data := make([]float32, 10*5)
	for i := range data {
		data[i] = float32(i%5) + 1
	}
	_, err := r.Write(media.AudioSample{
		Timestamp: 0, Format: media.FormatF32, SampleRate: 48000, Channels: 5, Data: data,
	})
	require.NoError(t, err)

	tail := r.Finalize()
	require.Len(t, tail, 1)
	// Target channel 2 (index 2) should carry source channel 2 untouched,
	// target channels beyond source count (none here, 3<5) always in range.
	require.InDelta(t, 3, tail[0].Data[2], 0.01)
}
