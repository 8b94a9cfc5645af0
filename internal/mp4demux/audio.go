package mp4demux

import (
	"context"
	"fmt"
	"io"

	gomp4 "github.com/abema/go-mp4"
	concentus "github.com/lostromb/concentus/go/opus"
	aacdecoder "github.com/skrashevich/go-aac/pkg/decoder"

	"github.com/jota2rz/vdj-video-sync/server/internal/media"
)

// extractAudioSpecificConfig is internal/bpm's getAudioSpecificConfig,
// unchanged: it searches the esds descriptor tree for the
// AudioSpecificConfig bytes the AAC decoder needs.
func extractAudioSpecificConfig(rs io.ReadSeeker) ([]byte, error) {
	paths := []gomp4.BoxPath{
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeMp4a(), gomp4.BoxTypeEsds()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeMp4a(), gomp4.BoxTypeWave(), gomp4.BoxTypeEsds()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeEnca(), gomp4.BoxTypeEsds()},
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	bips, err := gomp4.ExtractBoxesWithPayload(rs, nil, paths)
	if err != nil {
		return nil, fmt.Errorf("mp4demux: extract esds: %w", err)
	}

	for _, bip := range bips {
		if bip.Info.Type != gomp4.BoxTypeEsds() {
			continue
		}
		esds, ok := bip.Payload.(*gomp4.Esds)
		if !ok {
			continue
		}
		for _, desc := range esds.Descriptors {
			if desc.Tag == gomp4.DecSpecificInfoTag && len(desc.Data) >= 2 {
				return desc.Data, nil
			}
		}
	}
	return nil, fmt.Errorf("mp4demux: AudioSpecificConfig not found in esds")
}

// aacSampleSource decodes one AAC frame per Next call, the same
// seek-read-decode step internal/bpm's decodeAAC ran in a loop, but
// yielding each frame as a media.AudioSample instead of accumulating a
// downmixed mono buffer.
type aacSampleSource struct {
	r        io.ReaderAt
	dec      *aacdecoder.Decoder
	locs     []sampleLoc
	i        int
	channels int
	rate     int
}

func newAACSampleSource(r io.ReaderAt, track *gomp4.Track) (*aacSampleSource, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		return nil, fmt.Errorf("mp4demux: reader is not seekable")
	}
	asc, err := extractAudioSpecificConfig(rs)
	if err != nil {
		return nil, err
	}

	dec := aacdecoder.New()
	if err := dec.SetASC(asc); err != nil {
		return nil, fmt.Errorf("mp4demux: set AAC ASC: %w", err)
	}

	rate := int(track.Timescale)
	if dec.Config.SampleRate > 0 {
		rate = dec.Config.SampleRate
	}
	channels := dec.Config.ChanConfig
	if channels < 1 {
		channels = 1
	}

	return &aacSampleSource{r: r, dec: dec, locs: buildSampleLocs(track), channels: channels, rate: rate}, nil
}

func (s *aacSampleSource) Next(ctx context.Context) (media.AudioSample, bool, error) {
	for s.i < len(s.locs) {
		loc := s.locs[s.i]
		s.i++

		buf := make([]byte, loc.size)
		if _, err := s.r.ReadAt(buf, int64(loc.offset)); err != nil {
			return media.AudioSample{}, false, err
		}
		pcm, err := s.dec.DecodeFrame(buf)
		if err != nil {
			// Skip undecodable frames and keep going, as
			// internal/bpm's decodeAAC did.
			continue
		}
		return media.AudioSample{
			Timestamp:  loc.timestamp,
			Format:     media.FormatF32,
			SampleRate: s.rate,
			Channels:   s.channels,
			Data:       pcm,
		}, true, nil
	}
	return media.AudioSample{}, false, nil
}

func (s *aacSampleSource) Close() error { return nil }

// opusSampleSource is Opus's analogue of aacSampleSource, decoding
// through lostromb/concentus the way internal/bpm's decodeOpus did,
// yielding each packet's PCM as an int16→float32 media.AudioSample
// instead of a downmixed mono accumulation.
type opusSampleSource struct {
	r        io.ReaderAt
	dec      *concentus.OpusDecoder
	locs     []sampleLoc
	i        int
	channels int
	rate     int
	pcm16    []int16
}

func newOpusSampleSource(r io.ReaderAt, track *gomp4.Track) (*opusSampleSource, error) {
	rate := int(track.Timescale)
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		rate = 48000
	}
	channels := 2
	if track.AudioDesc != nil && track.AudioDesc.ChannelCount == 1 {
		channels = 1
	}

	dec, err := concentus.NewOpusDecoder(rate, channels)
	if err != nil {
		return nil, fmt.Errorf("mp4demux: create opus decoder: %w", err)
	}

	return &opusSampleSource{
		r: r, dec: dec, locs: buildSampleLocs(track),
		channels: channels, rate: rate,
		pcm16: make([]int16, 5760*channels),
	}, nil
}

func (s *opusSampleSource) Next(ctx context.Context) (media.AudioSample, bool, error) {
	for s.i < len(s.locs) {
		loc := s.locs[s.i]
		s.i++
		if loc.size <= 3 {
			// Padding/silence frames, same skip internal/bpm's
			// decodeOpus applied.
			continue
		}

		buf := make([]byte, loc.size)
		if _, err := s.r.ReadAt(buf, int64(loc.offset)); err != nil {
			return media.AudioSample{}, false, err
		}

		n, err := s.dec.Decode(buf, 0, len(buf), s.pcm16, 0, 5760, false)
		if err != nil {
			continue
		}

		data := make([]float32, n*s.channels)
		for i := 0; i < n*s.channels; i++ {
			data[i] = float32(s.pcm16[i]) / 32768.0
		}
		return media.AudioSample{
			Timestamp:  loc.timestamp,
			Format:     media.FormatF32,
			SampleRate: s.rate,
			Channels:   s.channels,
			Data:       data,
		}, true, nil
	}
	return media.AudioSample{}, false, nil
}

func (s *opusSampleSource) Close() error { return nil }
