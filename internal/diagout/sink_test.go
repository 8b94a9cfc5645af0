package diagout

import (
	"context"
	"testing"

	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
	"github.com/stretchr/testify/require"
)

func TestSink_LifecycleTransitions(t *testing.T) {
	s := NewSink()
	require.Equal(t, media.OutputPending, s.State())
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, media.OutputRunning, s.State())
	require.NoError(t, s.Finalize(context.Background()))
	require.Equal(t, media.OutputFinalized, s.State())
}

func TestSink_TrackWriterTalliesPacketsAndBytes(t *testing.T) {
	s := NewSink()
	w, err := s.AddVideoTrack(media.VideoTrackConfig{Codec: codecs.AVC, Width: 640, Height: 480})
	require.NoError(t, err)

	require.NoError(t, w.WritePacket(context.Background(), media.Packet{Timestamp: 0, Duration: 0.5, Data: []byte{1, 2, 3}}))
	require.NoError(t, w.WritePacket(context.Background(), media.Packet{Timestamp: 0.5, Duration: 0.5, Data: []byte{1, 2}}))

	tw := w.(*trackWriter)
	require.Equal(t, int64(2), tw.packets)
	require.Equal(t, int64(5), tw.bytes)
	require.Equal(t, 1.0, tw.maxTimestamp)
}

func TestSink_CancelSetsState(t *testing.T) {
	s := NewSink()
	require.NoError(t, s.Cancel())
	require.Equal(t, media.OutputCanceled, s.State())
}

func TestFormat_SupportsEveryCodecAndUnboundedCounts(t *testing.T) {
	f := Format{}
	require.Contains(t, f.SupportedVideoCodecs(), codecs.HEVC)
	require.Contains(t, f.SupportedAudioCodecs(), codecs.Opus)
	require.True(t, f.SupportsVideoRotationMetadata())
	counts := f.SupportedTrackCounts()
	require.Greater(t, counts.Video.Max, 1000)
}
