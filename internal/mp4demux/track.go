package mp4demux

import (
	"context"
	"fmt"

	gomp4 "github.com/abema/go-mp4"

	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
)

type videoTrack struct {
	src   *Source
	raw   *gomp4.Track
	codec codecs.Video
}

func newVideoTrack(src *Source, raw *gomp4.Track, codec codecs.Video) *videoTrack {
	return &videoTrack{src: src, raw: raw, codec: codec}
}

func (t *videoTrack) ID() int                   { return int(t.raw.TrackID) }
func (t *videoTrack) Type() media.TrackType     { return media.TrackVideo }
func (t *videoTrack) VideoCodec() codecs.Video  { return t.codec }
func (t *videoTrack) AudioCodec() codecs.Audio  { return codecs.AudioUnknown }
func (t *videoTrack) Rotation() int             { return 0 }
func (t *videoTrack) SampleRate() int           { return 0 }
func (t *videoTrack) ChannelCount() int         { return 0 }
func (t *videoTrack) LanguageCode() string      { return "" }
func (t *videoTrack) Name() string              { return "" }
func (t *videoTrack) Disposition() media.Disposition { return media.Disposition{} }

func (t *videoTrack) CodedDimensions() (int, int) {
	if t.raw.VideoDesc != nil {
		return int(t.raw.VideoDesc.Width), int(t.raw.VideoDesc.Height)
	}
	return 0, 0
}

func (t *videoTrack) FirstTimestamp(ctx context.Context) (float64, error) {
	locs := buildSampleLocs(t.raw)
	if len(locs) == 0 {
		return 0, nil
	}
	return locs[0].timestamp, nil
}

// CanDecode is always false: no video decode backend exists in this
// module's dependency set, so only the copy path is available for
// video tracks opened through mp4demux (spec.md §4.5's "is_decodable"
// gate then routes anything needing a rerender to DiscardUndecodableSourceCodec).
func (t *videoTrack) CanDecode() bool { return false }

func (t *videoTrack) DecoderConfig() media.DecoderConfig { return media.DecoderConfig{} }

func (t *videoTrack) Packets(ctx context.Context) (media.PacketSource, error) {
	return newPacketSource(t.src.file, buildSampleLocs(t.raw)), nil
}

func (t *videoTrack) VideoSamples(ctx context.Context) (media.VideoSampleSource, error) {
	return nil, fmt.Errorf("mp4demux: video decode not supported")
}

func (t *videoTrack) AudioSamples(ctx context.Context) (media.AudioSampleSource, error) {
	return nil, fmt.Errorf("mp4demux: track %d is not audio", t.ID())
}

func (t *videoTrack) Canvas(ctx context.Context, req media.CanvasRequest) (media.VideoSampleSource, error) {
	return nil, fmt.Errorf("mp4demux: video decode not supported")
}

type audioTrack struct {
	src   *Source
	raw   *gomp4.Track
	codec codecs.Audio
}

func newAudioTrack(src *Source, raw *gomp4.Track, codec codecs.Audio) *audioTrack {
	return &audioTrack{src: src, raw: raw, codec: codec}
}

func (t *audioTrack) ID() int                       { return int(t.raw.TrackID) }
func (t *audioTrack) Type() media.TrackType         { return media.TrackAudio }
func (t *audioTrack) VideoCodec() codecs.Video      { return codecs.VideoUnknown }
func (t *audioTrack) AudioCodec() codecs.Audio      { return t.codec }
func (t *audioTrack) CodedDimensions() (int, int)   { return 0, 0 }
func (t *audioTrack) Rotation() int                 { return 0 }
func (t *audioTrack) LanguageCode() string          { return "" }
func (t *audioTrack) Name() string                  { return "" }
func (t *audioTrack) Disposition() media.Disposition { return media.Disposition{} }

func (t *audioTrack) SampleRate() int {
	if t.raw.AudioDesc != nil && t.raw.AudioDesc.SampleRate > 0 {
		return int(t.raw.AudioDesc.SampleRate)
	}
	return int(t.raw.Timescale)
}

func (t *audioTrack) ChannelCount() int {
	if t.raw.AudioDesc != nil && t.raw.AudioDesc.ChannelCount > 0 {
		return int(t.raw.AudioDesc.ChannelCount)
	}
	return 2
}

func (t *audioTrack) FirstTimestamp(ctx context.Context) (float64, error) {
	locs := buildSampleLocs(t.raw)
	if len(locs) == 0 {
		return 0, nil
	}
	return locs[0].timestamp, nil
}

// CanDecode reports whether this module ships a decoder for the
// track's codec: AAC via skrashevich/go-aac, Opus via
// lostromb/concentus (spec.md §4.6's resample path needs this).
func (t *audioTrack) CanDecode() bool {
	return t.codec == codecs.AAC || t.codec == codecs.Opus
}

func (t *audioTrack) DecoderConfig() media.DecoderConfig {
	if t.codec != codecs.AAC {
		return media.DecoderConfig{}
	}
	asc, err := extractAudioSpecificConfig(t.src.file)
	if err != nil {
		return media.DecoderConfig{}
	}
	return media.DecoderConfig{Codec: "aac", Description: asc}
}

func (t *audioTrack) Packets(ctx context.Context) (media.PacketSource, error) {
	return newPacketSource(t.src.file, buildSampleLocs(t.raw)), nil
}

func (t *audioTrack) VideoSamples(ctx context.Context) (media.VideoSampleSource, error) {
	return nil, fmt.Errorf("mp4demux: track %d is not video", t.ID())
}

func (t *audioTrack) AudioSamples(ctx context.Context) (media.AudioSampleSource, error) {
	switch t.codec {
	case codecs.AAC:
		return newAACSampleSource(t.src.file, t.raw)
	case codecs.Opus:
		return newOpusSampleSource(t.src.file, t.raw)
	default:
		return nil, fmt.Errorf("mp4demux: no decoder for audio codec %s", t.codec)
	}
}

func (t *audioTrack) Canvas(ctx context.Context, req media.CanvasRequest) (media.VideoSampleSource, error) {
	return nil, fmt.Errorf("mp4demux: track %d is not video", t.ID())
}
