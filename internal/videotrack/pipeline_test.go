package videotrack

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/jota2rz/vdj-video-sync/server/internal/media"
	"github.com/jota2rz/vdj-video-sync/server/internal/syncer"
	"github.com/stretchr/testify/require"
)

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

type fakeWriter struct {
	written []media.Packet
	closed  bool
}

func (w *fakeWriter) WritePacket(ctx context.Context, p media.Packet) error {
	w.written = append(w.written, p)
	return nil
}
func (w *fakeWriter) Close(ctx context.Context) error { w.closed = true; return nil }

func newCopyPipeline(src *fakePacketSource, writer *fakeWriter) *Pipeline {
	track := &fakeTrackWithPackets{fakeTrack: &fakeTrack{videoCodec: 1}, src: src}
	return &Pipeline{
		TrackID:   1,
		Track:     track,
		Plan:      Plan{CopyPath: true},
		Opts:      DefaultOptions(),
		Writer:    writer,
		Sync:      syncer.New(),
		TrimStart: 0,
		TrimEnd:   math.Inf(1),
		Cancel:    new(atomic.Bool),
	}
}

type fakeTrackWithPackets struct {
	*fakeTrack
	src *fakePacketSource
}

func (f *fakeTrackWithPackets) Packets(context.Context) (media.PacketSource, error) {
	return f.src, nil
}

func TestPipeline_CopyPathForwardsPacketsInTrimWindow(t *testing.T) {
	src := &fakePacketSource{pkts: []media.Packet{
		{Timestamp: 0}, {Timestamp: 1}, {Timestamp: 2},
	}}
	writer := &fakeWriter{}
	p := newCopyPipeline(src, writer)

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, writer.written, 3)
	require.True(t, writer.closed)
}

func TestPipeline_CopyPathStripsAlphaSideDataOnDiscard(t *testing.T) {
	src := &fakePacketSource{pkts: []media.Packet{
		{Timestamp: 0, SideData: map[string][]byte{"alpha": {1, 2, 3}}},
	}}
	writer := &fakeWriter{}
	p := newCopyPipeline(src, writer)
	p.Opts.Alpha = media.AlphaDiscard

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, writer.written, 1)
	_, hasAlpha := writer.written[0].SideData["alpha"]
	require.False(t, hasAlpha)
}

func TestFrameRateAligner_PadsGapsAndDropsBackwardsSamples(t *testing.T) {
	a := newFrameRateAligner(10) // 10fps -> 0.1s frames

	out := a.Push(media.VideoSample{Timestamp: 0})
	require.Len(t, out, 1)

	// Jump 0.3s ahead: should pad two intermediate frames plus the real one.
	out = a.Push(media.VideoSample{Timestamp: 0.3})
	require.Len(t, out, 3)

	// A sample that aligns onto the last aligned timestamp (0.31 -> 0.3) is dropped.
	out = a.Push(media.VideoSample{Timestamp: 0.31})
	require.Empty(t, out)
}

func TestFrameRateAligner_FlushPadsTail(t *testing.T) {
	a := newFrameRateAligner(10)
	a.Push(media.VideoSample{Timestamp: 0, Duration: 0.25})
	out := a.Flush()
	require.NotEmpty(t, out)
}
