package quality

import (
	"testing"

	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
	"github.com/stretchr/testify/require"
)

func TestToVideoBitrate_PositiveMultipleOf1000(t *testing.T) {
	b := Medium.ToVideoBitrate(codecs.AVC, 1920, 1080)
	require.Greater(t, b, int64(0))
	require.Zero(t, b%1000)
}

func TestToVideoBitrate_StrictlyIncreasingInFactor(t *testing.T) {
	levels := []Quality{VeryLow, Low, Medium, High, VeryHigh}
	var prev int64
	for i, q := range levels {
		b := q.ToVideoBitrate(codecs.AVC, 1920, 1080)
		if i > 0 {
			require.Greater(t, b, prev)
		}
		prev = b
	}
}

func TestToVideoBitrate_CodecEfficiency(t *testing.T) {
	avc := Medium.ToVideoBitrate(codecs.AVC, 1920, 1080)
	hevc := Medium.ToVideoBitrate(codecs.HEVC, 1920, 1080)
	av1 := Medium.ToVideoBitrate(codecs.AV1, 1920, 1080)
	require.Less(t, hevc, avc)
	require.Less(t, av1, hevc)
}

func TestToAudioBitrate_PCMAndFLACHaveNone(t *testing.T) {
	for _, c := range []codecs.Audio{codecs.PCMS16LE, codecs.PCMS16BE, codecs.PCMF32LE, codecs.FLAC} {
		_, ok := Medium.ToAudioBitrate(c)
		require.False(t, ok, "%s should take no bitrate", c)
	}
}

func TestToAudioBitrate_AACSnapsToLadder(t *testing.T) {
	b, ok := Medium.ToAudioBitrate(codecs.AAC)
	require.True(t, ok)
	require.Contains(t, aacRates, b)
}

func TestToAudioBitrate_MP3SnapsToLegalRate(t *testing.T) {
	b, ok := VeryHigh.ToAudioBitrate(codecs.MP3)
	require.True(t, ok)
	require.Contains(t, mp3Rates, b)
}

func TestToAudioBitrate_OpusClampedToMin(t *testing.T) {
	q, err := New(0.01)
	require.NoError(t, err)
	b, ok := q.ToAudioBitrate(codecs.Opus)
	require.True(t, ok)
	require.GreaterOrEqual(t, b, int64(6000))
}

func TestNew_RejectsNonPositive(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
	_, err = New(-1)
	require.Error(t, err)
}
