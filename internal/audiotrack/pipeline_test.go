package audiotrack

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
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
	track := &fakeTrackWithPackets{fakeTrack: &fakeTrack{audioCodec: codecs.AAC}, src: src}

	p := &Pipeline{
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

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, writer.written, 3)
	require.True(t, writer.closed)
}
