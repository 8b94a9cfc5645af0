// Package codecs enumerates the video and audio codecs the conversion
// pipeline knows about. It mirrors the way internal/bpm detected codecs
// in the teacher repo (a small closed enum with a String method), scaled
// up to the full set the planner needs to reason about.
package codecs

// Video identifies a video coding format.
type Video int

const (
	VideoUnknown Video = iota
	AVC
	HEVC
	VP8
	VP9
	AV1
)

func (c Video) String() string {
	switch c {
	case AVC:
		return "avc"
	case HEVC:
		return "hevc"
	case VP8:
		return "vp8"
	case VP9:
		return "vp9"
	case AV1:
		return "av1"
	default:
		return "unknown"
	}
}

// Audio identifies an audio coding format, including the raw PCM
// variants that carry no bitrate (spec.md §3, §4.1).
type Audio int

const (
	AudioUnknown Audio = iota
	AAC
	Opus
	MP3
	Vorbis
	AC3
	EAC3
	FLAC
	PCMS16LE
	PCMS16BE
	PCMF32LE
)

func (c Audio) String() string {
	switch c {
	case AAC:
		return "aac"
	case Opus:
		return "opus"
	case MP3:
		return "mp3"
	case Vorbis:
		return "vorbis"
	case AC3:
		return "ac3"
	case EAC3:
		return "eac3"
	case FLAC:
		return "flac"
	case PCMS16LE:
		return "pcm-s16le"
	case PCMS16BE:
		return "pcm-s16be"
	case PCMF32LE:
		return "pcm-f32le"
	default:
		return "unknown"
	}
}

// IsPCM reports whether c is one of the raw PCM variants, which take no
// bitrate (spec.md §4.1, §GLOSSARY "PCM codecs").
func (c Audio) IsPCM() bool {
	switch c {
	case PCMS16LE, PCMS16BE, PCMF32LE:
		return true
	default:
		return false
	}
}

// TakesNoBitrate reports whether a bitrate is meaningless for c: PCM
// variants and FLAC (spec.md §4.1).
func (c Audio) TakesNoBitrate() bool {
	return c.IsPCM() || c == FLAC
}
