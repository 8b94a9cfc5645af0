package resample

// sqrtHalf is √½, the standard Web Audio down-mix attenuation constant
// (spec.md §6 "channel-mixdown table").
const sqrtHalf = 0.70710678

// standardChannelCounts are the channel counts the mixdown table
// defines explicitly (spec.md §4.4, §6). Combinations outside this set
// fall back to discrete channel-i-to-channel-i mapping.
var standardChannelCounts = map[int]bool{1: true, 2: true, 4: true, 6: true}

// selectMixMatrix returns a targetChannels x sourceChannels matrix
// where matrix[c][sc] is the weight source channel sc contributes to
// target channel c. For the standard 1/2/4/6-channel combinations this
// is the Web Audio up/down-mix table (spec.md §6); for anything else it
// is the discrete identity mapping spec.md §6 describes as the
// fallback: "channel i → channel i if in range, else 0".
func selectMixMatrix(sourceChannels, targetChannels int) [][]float32 {
	if standardChannelCounts[sourceChannels] && standardChannelCounts[targetChannels] {
		if m := standardMatrix(sourceChannels, targetChannels); m != nil {
			return m
		}
	}
	return discreteMatrix(sourceChannels, targetChannels)
}

func discreteMatrix(sourceChannels, targetChannels int) [][]float32 {
	m := make([][]float32, targetChannels)
	for c := range m {
		row := make([]float32, sourceChannels)
		if c < sourceChannels {
			row[c] = 1
		}
		m[c] = row
	}
	return m
}

// standardMatrix returns the Web Audio up/down-mix matrix for
// (sourceChannels -> targetChannels), or nil if the pair has no
// standard definition (callers fall back to discreteMatrix).
//
// Channel order follows the Web Audio speaker layout:
//
//	1ch: [mono]
//	2ch: [L, R]
//	4ch (quad): [FL, FR, RL, RR]
//	6ch (5.1):  [L, R, C, LFE, SL, SR]
func standardMatrix(sourceChannels, targetChannels int) [][]float32 {
	switch {
	case sourceChannels == targetChannels:
		return identity(sourceChannels)

	// ── Up-mix ──
	case sourceChannels == 1 && targetChannels == 2:
		return [][]float32{{1}, {1}}
	case sourceChannels == 1 && targetChannels == 4:
		return [][]float32{{1}, {1}, {0}, {0}}
	case sourceChannels == 1 && targetChannels == 6:
		return [][]float32{{0}, {0}, {1}, {0}, {0}, {0}}
	case sourceChannels == 2 && targetChannels == 4:
		return [][]float32{
			{1, 0}, {0, 1}, {0, 0}, {0, 0},
		}
	case sourceChannels == 2 && targetChannels == 6:
		return [][]float32{
			{1, 0}, {0, 1}, {0, 0}, {0, 0}, {0, 0}, {0, 0},
		}
	case sourceChannels == 4 && targetChannels == 6:
		return [][]float32{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0, 0, 0, 0},
			{0, 0, 0, 0},
			{0, 0, 1, 0},
			{0, 0, 0, 1},
		}

	// ── Down-mix ──
	case sourceChannels == 2 && targetChannels == 1:
		return [][]float32{{0.5, 0.5}}
	case sourceChannels == 4 && targetChannels == 1:
		return [][]float32{{0.25, 0.25, 0.25, 0.25}}
	case sourceChannels == 6 && targetChannels == 1:
		return [][]float32{{sqrtHalf, sqrtHalf, 1, 0, 0.5, 0.5}}
	case sourceChannels == 4 && targetChannels == 2:
		return [][]float32{
			{0.5, 0, 0.5, 0},
			{0, 0.5, 0, 0.5},
		}
	case sourceChannels == 6 && targetChannels == 2:
		return [][]float32{
			{1, 0, sqrtHalf, 0, sqrtHalf, 0},
			{0, 1, sqrtHalf, 0, 0, sqrtHalf},
		}
	case sourceChannels == 6 && targetChannels == 4:
		return [][]float32{
			{1, 0, sqrtHalf, 0, 0, 0},
			{0, 1, sqrtHalf, 0, 0, 0},
			{0, 0, 0, 0, 1, 0},
			{0, 0, 0, 0, 0, 1},
		}
	default:
		return nil
	}
}

func identity(n int) [][]float32 {
	m := make([][]float32, n)
	for i := range m {
		row := make([]float32, n)
		row[i] = 1
		m[i] = row
	}
	return m
}
