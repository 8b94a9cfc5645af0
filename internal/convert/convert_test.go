package convert

import (
	"context"
	"testing"

	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
	"github.com/jota2rz/vdj-video-sync/server/internal/videotrack"
	"github.com/stretchr/testify/require"
)

type fakeTrack struct {
	id         int
	typ        media.TrackType
	videoCodec codecs.Video
	audioCodec codecs.Audio
	width      int
	height     int
	channels   int
	rate       int
	pkts       []media.Packet
}

func (f *fakeTrack) ID() int                 { return f.id }
func (f *fakeTrack) Type() media.TrackType   { return f.typ }
func (f *fakeTrack) VideoCodec() codecs.Video { return f.videoCodec }
func (f *fakeTrack) AudioCodec() codecs.Audio { return f.audioCodec }
func (f *fakeTrack) CodedDimensions() (int, int) { return f.width, f.height }
func (f *fakeTrack) Rotation() int           { return 0 }
func (f *fakeTrack) SampleRate() int         { return f.rate }
func (f *fakeTrack) ChannelCount() int       { return f.channels }
func (f *fakeTrack) LanguageCode() string    { return "" }
func (f *fakeTrack) Name() string            { return "" }
func (f *fakeTrack) Disposition() media.Disposition { return media.Disposition{} }
func (f *fakeTrack) FirstTimestamp(context.Context) (float64, error) { return 0, nil }
func (f *fakeTrack) CanDecode() bool         { return true }
func (f *fakeTrack) DecoderConfig() media.DecoderConfig { return media.DecoderConfig{} }
func (f *fakeTrack) Packets(context.Context) (media.PacketSource, error) {
	return &fakePacketSource{pkts: f.pkts}, nil
}
func (f *fakeTrack) VideoSamples(context.Context) (media.VideoSampleSource, error) { return nil, nil }
func (f *fakeTrack) AudioSamples(context.Context) (media.AudioSampleSource, error) { return nil, nil }
func (f *fakeTrack) Canvas(context.Context, media.CanvasRequest) (media.VideoSampleSource, error) {
	return nil, nil
}

type fakePacketSource struct {
	pkts []media.Packet
	i    int
}

func (s *fakePacketSource) Next(context.Context) (media.Packet, bool, error) {
	if s.i >= len(s.pkts) {
		return media.Packet{}, false, nil
	}
	p := s.pkts[s.i]
	s.i++
	return p, true, nil
}
func (s *fakePacketSource) Close() error { return nil }

type fakeInput struct {
	tracks   []media.InputTrack
	duration float64
}

func (in *fakeInput) Tracks() []media.InputTrack { return in.tracks }
func (in *fakeInput) MetadataTags() map[string]string { return map[string]string{"title": "t"} }
func (in *fakeInput) Format() media.InputFormat { return media.InputFormat{MimeType: "video/mp4"} }
func (in *fakeInput) ComputeDuration(context.Context) (float64, error) { return in.duration, nil }
func (in *fakeInput) Close() error { return nil }

type fakeFormat struct {
	counts media.TrackCounts
	video  []codecs.Video
	audio  []codecs.Audio
}

func (f *fakeFormat) MimeType() string                       { return "video/mp4" }
func (f *fakeFormat) SupportedTrackCounts() media.TrackCounts { return f.counts }
func (f *fakeFormat) SupportedVideoCodecs() []codecs.Video    { return f.video }
func (f *fakeFormat) SupportedAudioCodecs() []codecs.Audio    { return f.audio }
func (f *fakeFormat) SupportedSubtitleCodecs() []string       { return nil }
func (f *fakeFormat) SupportsVideoRotationMetadata() bool     { return true }

type fakeTrackWriter struct {
	written []media.Packet
	closed  bool
}

func (w *fakeTrackWriter) WritePacket(ctx context.Context, p media.Packet) error {
	w.written = append(w.written, p)
	return nil
}
func (w *fakeTrackWriter) Close(ctx context.Context) error { w.closed = true; return nil }

type fakeOutput struct {
	format    *fakeFormat
	state     media.OutputState
	started   bool
	finalized bool
	canceled  bool
	tags      map[string]string
}

func (o *fakeOutput) Format() media.OutputFormat { return o.format }
func (o *fakeOutput) State() media.OutputState   { return o.state }
func (o *fakeOutput) AddVideoTrack(media.VideoTrackConfig) (media.TrackWriter, error) {
	return &fakeTrackWriter{}, nil
}
func (o *fakeOutput) AddAudioTrack(media.AudioTrackConfig) (media.TrackWriter, error) {
	return &fakeTrackWriter{}, nil
}
func (o *fakeOutput) SetMetadataTags(ctx context.Context, tags map[string]string) error {
	o.tags = tags
	return nil
}
func (o *fakeOutput) Start(context.Context) error    { o.started = true; return nil }
func (o *fakeOutput) Finalize(context.Context) error { o.finalized = true; return nil }
func (o *fakeOutput) Cancel() error                  { o.canceled = true; return nil }

func unlimitedCounts() media.TrackCounts {
	return media.TrackCounts{
		Total:    media.TrackCountRange{Min: 0, Max: 0},
		Video:    media.TrackCountRange{Min: 0, Max: 0},
		Audio:    media.TrackCountRange{Min: 0, Max: 0},
		Subtitle: media.TrackCountRange{Min: 0, Max: 0},
	}
}

func pureRemuxOptions() ConversionOptions {
	videoTrack := &fakeTrack{id: 1, typ: media.TrackVideo, videoCodec: codecs.AVC, width: 640, height: 480,
		pkts: []media.Packet{{Timestamp: 0}, {Timestamp: 1}}}
	audioTrack := &fakeTrack{id: 2, typ: media.TrackAudio, audioCodec: codecs.AAC, channels: 2, rate: 48000,
		pkts: []media.Packet{{Timestamp: 0}, {Timestamp: 1}}}

	return ConversionOptions{
		Input:  &fakeInput{tracks: []media.InputTrack{videoTrack, audioTrack}, duration: 2},
		Output: &fakeOutput{format: &fakeFormat{counts: unlimitedCounts(), video: []codecs.Video{codecs.AVC}, audio: []codecs.Audio{codecs.AAC}}},
	}
}

func TestNew_PureRemuxPlansBothTracksAsCopyPath(t *testing.T) {
	c, err := New(context.Background(), pureRemuxOptions())
	require.NoError(t, err)
	require.True(t, c.IsValid())
	require.Len(t, c.utilized, 2)
	require.Empty(t, c.DiscardedTracks())
	for _, job := range c.utilized {
		if job.typ == media.TrackVideo {
			require.True(t, job.videoPlan.CopyPath)
		} else {
			require.True(t, job.audioPlan.CopyPath)
		}
	}
}

func TestExecute_PureRemuxCompletesAndFinalizes(t *testing.T) {
	opts := pureRemuxOptions()
	c, err := New(context.Background(), opts)
	require.NoError(t, err)

	require.NoError(t, c.Execute(context.Background()))
	require.Equal(t, StateFinalized, c.State())
	require.True(t, opts.Output.(*fakeOutput).finalized)
}

func TestExecute_AlreadyExecutedErrors(t *testing.T) {
	opts := pureRemuxOptions()
	c, err := New(context.Background(), opts)
	require.NoError(t, err)
	require.NoError(t, c.Execute(context.Background()))

	err = c.Execute(context.Background())
	require.ErrorIs(t, err, ErrConversionAlreadyExecuted)
}

func TestNew_DiscardByUser(t *testing.T) {
	opts := pureRemuxOptions()
	opts.Video = func(track media.InputTrack, n int) videotrack.Options {
		o := videotrack.DefaultOptions()
		o.Discard = true
		return o
	}

	c, err := New(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, c.utilized, 1)
	discarded := c.DiscardedTracks()
	require.Len(t, discarded, 1)
	require.Equal(t, media.TrackVideo, discarded[0].Type)
	require.Equal(t, media.DiscardByUser, discarded[0].Reason)
}

func TestCancel_IdempotentBeforeExecute(t *testing.T) {
	c, err := New(context.Background(), pureRemuxOptions())
	require.NoError(t, err)
	require.NoError(t, c.Cancel())
	require.NoError(t, c.Cancel())
	require.Equal(t, StateCanceled, c.State())
}

func TestNew_NoEncodableTargetCodecNamesSourceCodecInValidationError(t *testing.T) {
	videoTrack := &fakeTrack{id: 1, typ: media.TrackVideo, videoCodec: codecs.VP9, width: 640, height: 480}
	counts := media.TrackCounts{
		Total: media.TrackCountRange{Min: 1},
		Video: media.TrackCountRange{Min: 1},
	}
	opts := ConversionOptions{
		Input:  &fakeInput{tracks: []media.InputTrack{videoTrack}, duration: 1},
		Output: &fakeOutput{format: &fakeFormat{counts: counts, video: []codecs.Video{codecs.AVC}}},
	}

	c, err := New(context.Background(), opts)
	require.NoError(t, err)
	require.False(t, c.IsValid())

	discarded := c.DiscardedTracks()
	require.Len(t, discarded, 1)
	require.Equal(t, media.DiscardNoEncodableTargetCodec, discarded[0].Reason)
	require.Equal(t, "vp9", discarded[0].Codec)

	require.ErrorIs(t, c.ValidationError(), ErrConversionNotValid)
	require.Contains(t, c.ValidationError().Error(), "vp9")

	err = c.Execute(context.Background())
	require.ErrorIs(t, err, ErrConversionNotValid)
	require.Contains(t, err.Error(), "vp9")
}

func TestNew_InvalidOptionsMissingInput(t *testing.T) {
	_, err := New(context.Background(), ConversionOptions{Output: &fakeOutput{format: &fakeFormat{counts: unlimitedCounts()}}})
	require.Error(t, err)
	var invalidOpt *InvalidOptionError
	require.ErrorAs(t, err, &invalidOpt)
}
