package mp4demux

import (
	gomp4 "github.com/abema/go-mp4"
)

// sampleLoc is one sample's position in the file plus its synthesized
// timeline placement.
type sampleLoc struct {
	offset    uint64
	size      uint32
	timestamp float64
	duration  float64
}

// buildSampleLocs flattens a track's chunk table into (offset, size)
// pairs the way internal/bpm's buildSampleLocations did, then spreads
// them evenly across the track's duration to synthesize a timestamp
// and duration per sample.
//
// abema/go-mp4's Probe API exposes only sample sizes and chunk
// offsets, not per-sample time deltas (stts/ctts) — internal/bpm never
// needed real per-sample timing either, it just counted decoded PCM
// samples against a fixed cap. This assumes constant frame duration,
// which holds for the common CFR case and degrades gracefully (slight
// jitter in reported timestamps, no data loss) for VFR sources.
func buildSampleLocs(track *gomp4.Track) []sampleLoc {
	n := len(track.Samples)
	locs := make([]sampleLoc, 0, n)

	trackDuration := 0.0
	if track.Timescale > 0 {
		trackDuration = float64(track.Duration) / float64(track.Timescale)
	}
	perSample := 0.0
	if n > 0 {
		perSample = trackDuration / float64(n)
	}

	idx := 0
	for _, chunk := range track.Chunks {
		off := chunk.DataOffset
		for j := uint32(0); j < chunk.SamplesPerChunk; j++ {
			if idx >= n {
				return locs
			}
			sz := track.Samples[idx].Size
			locs = append(locs, sampleLoc{
				offset:    off,
				size:      sz,
				timestamp: float64(idx) * perSample,
				duration:  perSample,
			})
			off += uint64(sz)
			idx++
		}
	}
	return locs
}

// locsAfter returns the index of the first sample location whose span
// ends after t (the sample containing t, or the first one after it),
// for trim-start seeking.
func locsAfter(locs []sampleLoc, t float64) int {
	for i, l := range locs {
		if l.timestamp+l.duration > t {
			return i
		}
	}
	return len(locs)
}
