package videotrack

import (
	"context"
	"testing"

	"github.com/jota2rz/vdj-video-sync/server/internal/capability"
	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
	"github.com/stretchr/testify/require"
)

type fakeTrack struct {
	videoCodec codecs.Video
	width      int
	height     int
	rotation   int
	canDecode  bool
}

func (f *fakeTrack) ID() int                               { return 1 }
func (f *fakeTrack) Type() media.TrackType                 { return media.TrackVideo }
func (f *fakeTrack) VideoCodec() codecs.Video               { return f.videoCodec }
func (f *fakeTrack) AudioCodec() codecs.Audio               { return codecs.AudioUnknown }
func (f *fakeTrack) CodedDimensions() (int, int)            { return f.width, f.height }
func (f *fakeTrack) Rotation() int                          { return f.rotation }
func (f *fakeTrack) SampleRate() int                        { return 0 }
func (f *fakeTrack) ChannelCount() int                      { return 0 }
func (f *fakeTrack) LanguageCode() string                   { return "" }
func (f *fakeTrack) Name() string                           { return "" }
func (f *fakeTrack) Disposition() media.Disposition         { return media.Disposition{} }
func (f *fakeTrack) FirstTimestamp(context.Context) (float64, error) { return 0, nil }
func (f *fakeTrack) CanDecode() bool                        { return f.canDecode }
func (f *fakeTrack) DecoderConfig() media.DecoderConfig      { return media.DecoderConfig{} }
func (f *fakeTrack) Packets(context.Context) (media.PacketSource, error)           { return nil, nil }
func (f *fakeTrack) VideoSamples(context.Context) (media.VideoSampleSource, error) { return nil, nil }
func (f *fakeTrack) AudioSamples(context.Context) (media.AudioSampleSource, error) { return nil, nil }
func (f *fakeTrack) Canvas(context.Context, media.CanvasRequest) (media.VideoSampleSource, error) {
	return nil, nil
}

type fakeFormat struct {
	video        []codecs.Video
	rotationMeta bool
}

func (f *fakeFormat) MimeType() string                         { return "video/mp4" }
func (f *fakeFormat) SupportedTrackCounts() media.TrackCounts   { return media.TrackCounts{} }
func (f *fakeFormat) SupportedVideoCodecs() []codecs.Video      { return f.video }
func (f *fakeFormat) SupportedAudioCodecs() []codecs.Audio      { return nil }
func (f *fakeFormat) SupportedSubtitleCodecs() []string         { return nil }
func (f *fakeFormat) SupportsVideoRotationMetadata() bool       { return f.rotationMeta }

type fakeBackend struct {
	supported map[codecs.Video]bool
}

func (b *fakeBackend) Name() string { return "fake" }
func (b *fakeBackend) CanEncodeVideo(c codecs.Video, w, h int, br int64, o media.VideoEncoderOptions) bool {
	return b.supported[c]
}
func (b *fakeBackend) CanEncodeAudio(codecs.Audio, int, int, int64) bool { return false }
func (b *fakeBackend) CanEncodeSubtitles(string) bool                   { return false }
func (b *fakeBackend) NewVideoEncoder(c codecs.Video, w, h int, br int64, o media.VideoEncoderOptions) (media.VideoEncoder, error) {
	return nil, nil
}
func (b *fakeBackend) NewAudioEncoder(codecs.Audio, int, int, int64) (media.AudioEncoder, error) {
	return nil, nil
}
func (b *fakeBackend) OverReportsSupport() bool { return false }

func TestPlanTrack_DiscardedByUser(t *testing.T) {
	p := PlanTrack(context.Background(), PlanInputs{
		Track: &fakeTrack{videoCodec: codecs.AVC},
		Opts:  Options{Discard: true},
	})
	require.True(t, p.Discarded)
	require.Equal(t, media.DiscardByUser, p.DiscardReason)
}

func TestPlanTrack_CopyPathWhenNothingForcesTranscode(t *testing.T) {
	track := &fakeTrack{videoCodec: codecs.AVC, width: 640, height: 480}
	format := &fakeFormat{video: []codecs.Video{codecs.AVC}}
	prober := capability.NewProber(&fakeBackend{supported: map[codecs.Video]bool{codecs.AVC: true}})

	p := PlanTrack(context.Background(), PlanInputs{
		Track:     track,
		Opts:      DefaultOptions(),
		OutFormat: format,
		Prober:    prober,
		TrimStart: 0,
		FirstPTS:  0,
	})
	require.False(t, p.Discarded)
	require.True(t, p.CopyPath)
	require.Equal(t, codecs.AVC, p.Codec)
	require.Equal(t, 640, p.TargetWidth)
	require.Equal(t, 480, p.TargetHeight)
}

func TestPlanTrack_ResizeOddDimensionsForcesRerender(t *testing.T) {
	track := &fakeTrack{videoCodec: codecs.AVC, width: 1281, height: 721, canDecode: true}
	format := &fakeFormat{video: []codecs.Video{codecs.AVC}}
	prober := capability.NewProber(&fakeBackend{supported: map[codecs.Video]bool{codecs.AVC: true}})

	opts := DefaultOptions()
	opts.Width = 641

	p := PlanTrack(context.Background(), PlanInputs{
		Track:     track,
		Opts:      opts,
		OutFormat: format,
		Prober:    prober,
	})
	require.False(t, p.Discarded)
	require.False(t, p.CopyPath)
	require.True(t, p.NeedsRerender)
	require.Equal(t, 642, p.TargetWidth) // 641 rounded up to even
	require.Equal(t, 0, p.TargetWidth%2)
	require.Equal(t, 0, p.TargetHeight%2)
	// spec.md §8 Scenario 4: 1281x721 resized to width 641 ->
	// raw height 721*641/1281 ~= 360.781, ceil to 361, bump odd to 362.
	require.Equal(t, 362, p.TargetHeight)
}

func TestPlanTrack_TrimStartForcesTranscodeEvenWithoutGeometryChange(t *testing.T) {
	track := &fakeTrack{videoCodec: codecs.AVC, width: 640, height: 480, canDecode: true}
	format := &fakeFormat{video: []codecs.Video{codecs.AVC}}
	prober := capability.NewProber(&fakeBackend{supported: map[codecs.Video]bool{codecs.AVC: true}})

	p := PlanTrack(context.Background(), PlanInputs{
		Track:     track,
		Opts:      DefaultOptions(),
		OutFormat: format,
		Prober:    prober,
		TrimStart: 2.0,
	})
	require.False(t, p.Discarded)
	require.False(t, p.CopyPath)
	require.True(t, p.NeedsTranscode)
	require.False(t, p.NeedsRerender)
}

func TestPlanTrack_UndecodableSourceDiscardedOnTranscodePath(t *testing.T) {
	track := &fakeTrack{videoCodec: codecs.AVC, width: 640, height: 480, canDecode: false}
	format := &fakeFormat{video: []codecs.Video{codecs.AVC}}
	prober := capability.NewProber(&fakeBackend{supported: map[codecs.Video]bool{codecs.AVC: true}})

	opts := DefaultOptions()
	opts.ForceTranscode = true
	p := PlanTrack(context.Background(), PlanInputs{
		Track: track, Opts: opts, OutFormat: format, Prober: prober,
	})
	require.True(t, p.Discarded)
	require.Equal(t, media.DiscardUndecodableSourceCodec, p.DiscardReason)
}

func TestPlanTrack_NoEncodableTargetCodecDiscarded(t *testing.T) {
	track := &fakeTrack{videoCodec: codecs.AVC, width: 640, height: 480, canDecode: true}
	format := &fakeFormat{video: []codecs.Video{codecs.VP9}}
	prober := capability.NewProber(&fakeBackend{supported: map[codecs.Video]bool{}})

	opts := DefaultOptions()
	opts.ForceTranscode = true
	p := PlanTrack(context.Background(), PlanInputs{
		Track: track, Opts: opts, OutFormat: format, Prober: prober,
	})
	require.True(t, p.Discarded)
	require.Equal(t, media.DiscardNoEncodableTargetCodec, p.DiscardReason)
}
