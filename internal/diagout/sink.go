// Package diagout is the repository's one concrete media.OutputSink: a
// dry-run sink that accepts every track the planner hands it, tallies
// bytes/packets/duration per track, and logs a summary on Finalize
// instead of muxing real container bytes to disk. No Go MP4-muxing or
// AVC/HEVC/AAC/Opus encoder library exists anywhere in the retrieved
// corpus (see DESIGN.md), so this is the honest stand-in: it lets the
// real planner, synchronizer, and decode pipeline run end to end
// against a real input file, the same role internal/bpm's analysis
// loop played in the teacher (decode and report, never write output).
package diagout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
)

// Format advertises support for every codec and an unlimited track
// count, so the planner's copy-path and codec-override decisions are
// driven entirely by the input and the requested options rather than
// by an artificial output-format ceiling.
type Format struct{}

func (Format) MimeType() string { return "application/x-diagnostic" }

func (Format) SupportedTrackCounts() media.TrackCounts {
	unbounded := media.TrackCountRange{Min: 0, Max: 1 << 30}
	return media.TrackCounts{Total: unbounded, Video: unbounded, Audio: unbounded, Subtitle: unbounded}
}

func (Format) SupportedVideoCodecs() []codecs.Video {
	return []codecs.Video{codecs.AVC, codecs.HEVC, codecs.VP8, codecs.VP9, codecs.AV1}
}

func (Format) SupportedAudioCodecs() []codecs.Audio {
	return []codecs.Audio{codecs.AAC, codecs.Opus, codecs.MP3, codecs.Vorbis, codecs.AC3, codecs.EAC3, codecs.FLAC, codecs.PCMS16LE, codecs.PCMS16BE, codecs.PCMF32LE}
}

func (Format) SupportedSubtitleCodecs() []string { return []string{"webvtt", "srt"} }

func (Format) SupportsVideoRotationMetadata() bool { return true }

// Sink is a media.OutputSink that never writes bytes, only counts them.
type Sink struct {
	mu     sync.Mutex
	state  media.OutputState
	tags   map[string]string
	writer []*trackWriter
}

// NewSink creates a Sink in media.OutputPending.
func NewSink() *Sink {
	return &Sink{state: media.OutputPending}
}

func (s *Sink) Format() media.OutputFormat { return Format{} }

func (s *Sink) State() media.OutputState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sink) AddVideoTrack(cfg media.VideoTrackConfig) (media.TrackWriter, error) {
	w := &trackWriter{kind: "video", label: fmt.Sprintf("%s %dx%d", cfg.Codec, cfg.Width, cfg.Height)}
	s.mu.Lock()
	s.writer = append(s.writer, w)
	s.mu.Unlock()
	return w, nil
}

func (s *Sink) AddAudioTrack(cfg media.AudioTrackConfig) (media.TrackWriter, error) {
	w := &trackWriter{kind: "audio", label: fmt.Sprintf("%s %dch@%dhz", cfg.Codec, cfg.Channels, cfg.SampleRate)}
	s.mu.Lock()
	s.writer = append(s.writer, w)
	s.mu.Unlock()
	return w, nil
}

func (s *Sink) SetMetadataTags(ctx context.Context, tags map[string]string) error {
	s.mu.Lock()
	s.tags = tags
	s.mu.Unlock()
	return nil
}

func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	s.state = media.OutputRunning
	s.mu.Unlock()
	slog.Info("diagout: output started")
	return nil
}

func (s *Sink) Finalize(ctx context.Context) error {
	s.mu.Lock()
	s.state = media.OutputFinalized
	writers := append([]*trackWriter(nil), s.writer...)
	s.mu.Unlock()

	for _, w := range writers {
		w.mu.Lock()
		slog.Info("diagout: track summary",
			"kind", w.kind, "codec", w.label,
			"packets", w.packets, "bytes", w.bytes,
			"duration", time.Duration(w.maxTimestamp*float64(time.Second)))
		w.mu.Unlock()
	}
	return nil
}

func (s *Sink) Cancel() error {
	s.mu.Lock()
	s.state = media.OutputCanceled
	s.mu.Unlock()
	return nil
}

type trackWriter struct {
	mu           sync.Mutex
	kind         string
	label        string
	packets      int64
	bytes        int64
	maxTimestamp float64
}

func (w *trackWriter) WritePacket(ctx context.Context, p media.Packet) error {
	w.mu.Lock()
	w.packets++
	w.bytes += int64(len(p.Data))
	if end := p.Timestamp + p.Duration; end > w.maxTimestamp {
		w.maxTimestamp = end
	}
	w.mu.Unlock()
	return nil
}

func (w *trackWriter) Close(ctx context.Context) error { return nil }
