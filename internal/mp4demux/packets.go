package mp4demux

import (
	"context"
	"io"

	"github.com/jota2rz/vdj-video-sync/server/internal/media"
)

// packetSource reads each sample's raw bytes on demand, seeking into
// the shared *os.File the way internal/bpm's decode loops did, instead
// of internal/bpm's read-everything-up-front approach — tracks are
// pulled one packet at a time by the pipeline's copy path.
type packetSource struct {
	r    io.ReaderAt
	locs []sampleLoc
	i    int
}

func newPacketSource(r io.ReaderAt, locs []sampleLoc) *packetSource {
	return &packetSource{r: r, locs: locs}
}

func (s *packetSource) Next(ctx context.Context) (media.Packet, bool, error) {
	if s.i >= len(s.locs) {
		return media.Packet{}, false, nil
	}
	loc := s.locs[s.i]
	s.i++

	buf := make([]byte, loc.size)
	if _, err := s.r.ReadAt(buf, int64(loc.offset)); err != nil {
		return media.Packet{}, false, err
	}
	return media.Packet{
		Timestamp:  loc.timestamp,
		Duration:   loc.duration,
		Data:       buf,
		IsKeyFrame: s.i == 1,
	}, true, nil
}

func (s *packetSource) Close() error { return nil }
