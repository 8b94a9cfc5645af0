// Package quality maps a subjective quality factor onto codec-specific
// bitrates (spec.md §3, §4.1). A Quality value is an opaque, immutable
// wrapper around a positive real factor, constructed once at planning
// time and shared read-only across track pipelines.
package quality

import (
	"fmt"
	"math"

	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
)

// Quality is an opaque multiplier applied to reference codec bitrates.
type Quality struct {
	factor float64
}

// Named quality levels (spec.md §3).
var (
	VeryLow  = Quality{factor: 0.3}
	Low      = Quality{factor: 0.6}
	Medium   = Quality{factor: 1.0}
	High     = Quality{factor: 2.0}
	VeryHigh = Quality{factor: 4.0}
)

// New constructs a Quality from an arbitrary positive factor.
func New(factor float64) (Quality, error) {
	if factor <= 0 {
		return Quality{}, fmt.Errorf("quality: factor must be positive, got %v", factor)
	}
	return Quality{factor: factor}, nil
}

// Factor returns the underlying multiplier.
func (q Quality) Factor() float64 {
	return q.factor
}

// videoEfficiency are the per-codec multipliers relative to AVC at the
// same pixel count and quality factor (spec.md §4.1).
var videoEfficiency = map[codecs.Video]float64{
	codecs.AVC:  1.0,
	codecs.VP8:  1.2,
	codecs.HEVC: 0.6,
	codecs.VP9:  0.6,
	codecs.AV1:  0.4,
}

// ToVideoBitrate computes bits/s for the given codec and frame size at
// this quality level (spec.md §4.1):
//
//	base = 3_000_000 * (w*h / (1920*1080))^0.95
//	bitrate = ceil1000(base * efficiency[codec] * factor)
func (q Quality) ToVideoBitrate(codec codecs.Video, width, height int) int64 {
	pixels := float64(width) * float64(height)
	base := 3_000_000 * math.Pow(pixels/(1920*1080), 0.95)
	eff, ok := videoEfficiency[codec]
	if !ok {
		eff = 1.0 // unknown codec: fall back to AVC-equivalent efficiency
	}
	bitrate := base * eff * q.factor
	return ceilTo(bitrate, 1000)
}

// audioBase are the reference bitrates (bits/s) at quality factor 1.0
// (spec.md §4.1).
var audioBase = map[codecs.Audio]float64{
	codecs.AAC:    128_000,
	codecs.Opus:   64_000,
	codecs.MP3:    160_000,
	codecs.Vorbis: 64_000,
	codecs.AC3:    640_000,
	codecs.EAC3:   256_000,
}

// aacRates are the legal snap targets for AAC (spec.md §4.1).
var aacRates = []int64{96_000, 128_000, 160_000, 192_000}

// mp3Rates is the MP3 legal bitrate ladder (spec.md §4.1).
var mp3Rates = []int64{
	8_000, 16_000, 24_000, 32_000, 40_000, 48_000, 64_000, 80_000,
	96_000, 112_000, 128_000, 160_000, 192_000, 224_000, 256_000, 320_000,
}

// ToAudioBitrate computes bits/s for the given codec at this quality
// level. Returns ok=false for codecs that take no bitrate (spec.md
// §4.1, §GLOSSARY "PCM codecs").
func (q Quality) ToAudioBitrate(codec codecs.Audio) (bitrate int64, ok bool) {
	if codec.TakesNoBitrate() {
		return 0, false
	}
	base, known := audioBase[codec]
	if !known {
		base = audioBase[codecs.AAC] // unusual codec: fall back to AAC's reference rate
	}
	raw := base * q.factor

	switch codec {
	case codecs.AAC:
		return nearest(raw, aacRates), true
	case codecs.MP3:
		return nearest(raw, mp3Rates), true
	case codecs.Opus, codecs.Vorbis:
		r := int64(math.Round(raw))
		if r < 6000 {
			r = 6000
		}
		return r, true
	default:
		return int64(math.Round(raw/1000) * 1000), true
	}
}

// ceilTo rounds v up to the nearest positive multiple of step.
func ceilTo(v, step float64) int64 {
	return int64(math.Ceil(v/step) * step)
}

// nearest returns the value in candidates closest to target.
func nearest(target float64, candidates []int64) int64 {
	best := candidates[0]
	bestDiff := math.Abs(target - float64(best))
	for _, c := range candidates[1:] {
		d := math.Abs(target - float64(c))
		if d < bestDiff {
			best, bestDiff = c, d
		}
	}
	return best
}
