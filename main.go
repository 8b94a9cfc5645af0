package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jota2rz/vdj-video-sync/server/internal/audiotrack"
	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
	"github.com/jota2rz/vdj-video-sync/server/internal/convert"
	"github.com/jota2rz/vdj-video-sync/server/internal/diagout"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
	"github.com/jota2rz/vdj-video-sync/server/internal/mp4demux"
	"github.com/jota2rz/vdj-video-sync/server/internal/progresshub"
	"github.com/jota2rz/vdj-video-sync/server/internal/quality"
	"github.com/jota2rz/vdj-video-sync/server/internal/store"
	"github.com/jota2rz/vdj-video-sync/server/internal/videotrack"
)

func main() {
	// ── Flags ───────────────────────────────────────────
	input := flag.String("input", "", "MP4 file to convert")
	watchDir := flag.String("watch", "", "directory to watch for new .mp4 files (processed one at a time)")
	profileName := flag.String("profile", "", "named conversion profile to apply (see -db)")
	dbPath := flag.String("db", "convert.db", "SQLite database path for profiles and the capability cache")
	debug := flag.Bool("debug", false, "enable debug logging")
	trimStart := flag.Float64("trim-start", 0, "seconds to trim from the start of the input")
	trimEnd := flag.Float64("trim-end", 0, "seconds marking the end of the trimmed range (0 means to the end)")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	// ── Logger ──────────────────────────────────────────
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if *input == "" && *watchDir == "" {
		slog.Error("one of -input or -watch is required")
		os.Exit(1)
	}

	// ── Database: profiles + capability cache ──────────
	database, err := store.Open(*dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// internal/store.CapabilityCache/CachingBackend wrap a real
	// media.EncoderBackend (see store_test.go) — this CLI build ships
	// no such backend (no real Go AVC/HEVC/AAC/Opus encoder exists in
	// the retrieved corpus), so every conversion here takes the copy
	// path and there is nothing yet for the cache to remember.
	profiles := store.NewProfiles(database)

	// ── Progress hub ────────────────────────────────────
	hub := progresshub.NewHub()
	go hub.Run()
	defer hub.Close()

	printer := &progresshub.Subscriber{ID: "cli-printer", Events: make(chan progresshub.Event, 32)}
	hub.Register(printer)
	go printProgress(printer)

	// ── Metrics ─────────────────────────────────────────
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			slog.Info("metrics server starting", "addr", *metricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-done
		slog.Info("shutting down...")
		cancel()
	}()

	var prof profileOptions
	if *profileName != "" {
		settings, ok, err := profiles.Get(*profileName)
		if err != nil {
			slog.Error("failed to load profile", "profile", *profileName, "error", err)
			os.Exit(1)
		}
		if !ok {
			slog.Error("no such profile", "profile", *profileName)
			os.Exit(1)
		}
		prof = profileOptions{settings: settings, present: true}
		slog.Info("applying profile", "profile", *profileName)
	}

	trim := convert.Trim{Start: *trimStart, End: *trimEnd}

	if *input != "" {
		if err := convertFile(ctx, *input, trim, prof, hub); err != nil {
			slog.Error("conversion failed", "file", *input, "error", err)
			os.Exit(1)
		}
	}

	if *watchDir != "" {
		if err := watchAndConvert(ctx, *watchDir, trim, prof, hub); err != nil && ctx.Err() == nil {
			slog.Error("watch loop failed", "dir", *watchDir, "error", err)
			os.Exit(1)
		}
	}
}

// profileOptions carries a named profile's settings, applied uniformly
// to every video/audio track of a conversion (spec.md §6 allows
// per-track functions; a CLI profile picks one set of knobs for the
// whole invocation instead).
type profileOptions struct {
	settings store.ProfileSettings
	present  bool
}

func (o profileOptions) videoOptions() videotrack.Options {
	opts := videotrack.DefaultOptions()
	if !o.present {
		return opts
	}
	s := o.settings
	opts.Width = s.Width
	opts.Height = s.Height
	opts.FrameRate = s.FrameRate
	opts.Codec = parseVideoCodec(s.VideoCodec)
	opts.Quality = parseQuality(s.Quality)
	opts.Fit = parseFit(s.Fit)
	return opts
}

func (o profileOptions) audioOptions() audiotrack.Options {
	opts := audiotrack.DefaultOptions()
	if !o.present {
		return opts
	}
	s := o.settings
	opts.Codec = parseAudioCodec(s.AudioCodec)
	opts.Quality = parseQuality(s.Quality)
	return opts
}

// convertFile runs one conversion of path through the real mp4demux
// input and the diagout dry-run output.
func convertFile(ctx context.Context, path string, trim convert.Trim, prof profileOptions, hub *progresshub.Hub) error {
	src, err := mp4demux.Open(path)
	if err != nil {
		return fmt.Errorf("main: open %s: %w", path, err)
	}
	defer src.Close()

	id := uuid.New()
	log := slog.With("conversion_id", id.String(), "file", path)

	sink := diagout.NewSink()
	opts := convert.ConversionOptions{
		Input:  src,
		Output: sink,
		Trim:   trim,
		Video: func(track media.InputTrack, n int) videotrack.Options {
			return prof.videoOptions()
		},
		Audio: func(track media.InputTrack, n int) audiotrack.Options {
			return prof.audioOptions()
		},
		ShowWarnings: true,
		OnProgress: func(p float64) {
			hub.Publish(progresshub.Event{Kind: progresshub.EventProgress, ConversionID: id, Progress: p})
		},
	}

	conv, err := convert.New(ctx, opts)
	if err != nil {
		return fmt.Errorf("main: plan %s: %w", path, err)
	}

	for _, d := range conv.DiscardedTracks() {
		log.Info("track discarded", "track_id", d.TrackID, "type", d.Type.String(), "reason", d.Reason.String(), "codec", d.Codec)
		hub.Publish(progresshub.Event{Kind: progresshub.EventDiscardedTrack, ConversionID: id, Discarded: d})
	}

	if !conv.IsValid() {
		validationErr := conv.ValidationError()
		hub.Publish(progresshub.Event{Kind: progresshub.EventFailed, ConversionID: id, Err: validationErr})
		return validationErr
	}

	log.Info("conversion starting")
	if err := conv.Execute(ctx); err != nil {
		hub.Publish(progresshub.Event{Kind: progresshub.EventFailed, ConversionID: id, Err: err})
		return fmt.Errorf("main: execute %s: %w", path, err)
	}

	hub.Publish(progresshub.Event{Kind: progresshub.EventCompleted, ConversionID: id})
	log.Info("conversion finished", "state", conv.State().String())
	return nil
}

// watchAndConvert implements --watch: an fsnotify-backed directory
// queue, one conversion at a time in file-discovery order, grounded on
// ManuGH/xg2g's internal/proxy.WaitForFile watcher shape (watch the
// directory, filter events by extension/op, fall through to
// ctx.Done()).
func watchAndConvert(ctx context.Context, dir string, trim convert.Trim, prof profileOptions, hub *progresshub.Hub) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("main: fsnotify.NewWatcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("main: watch %s: %w", dir, err)
	}
	slog.Info("watching for new files", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("main: watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".mp4") {
				continue
			}
			if err := convertFile(ctx, event.Name, trim, prof, hub); err != nil {
				slog.Error("conversion failed", "file", event.Name, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("main: watcher errors channel closed")
			}
			slog.Warn("fsnotify watcher error", "error", err)
		}
	}
}

// printProgress is the CLI's reference progresshub subscriber: one
// line per event (spec.md §4.7's progress reporting surfaced for a
// human instead of a raw callback).
func printProgress(sub *progresshub.Subscriber) {
	for ev := range sub.Events {
		switch ev.Kind {
		case progresshub.EventProgress:
			fmt.Printf("[%s] progress %.0f%%\n", shortID(ev.ConversionID), ev.Progress*100)
		case progresshub.EventDiscardedTrack:
			fmt.Printf("[%s] discarded %s track %d: %s\n", shortID(ev.ConversionID), ev.Discarded.Type, ev.Discarded.TrackID, ev.Discarded.Reason)
		case progresshub.EventCompleted:
			fmt.Printf("[%s] completed\n", shortID(ev.ConversionID))
		case progresshub.EventFailed:
			fmt.Printf("[%s] failed: %v\n", shortID(ev.ConversionID), ev.Err)
		}
	}
}

func shortID(id uuid.UUID) string { return id.String()[:8] }

func parseVideoCodec(name string) codecs.Video {
	switch strings.ToLower(name) {
	case "avc", "h264":
		return codecs.AVC
	case "hevc", "h265":
		return codecs.HEVC
	case "vp9":
		return codecs.VP9
	case "av1":
		return codecs.AV1
	default:
		return codecs.VideoUnknown
	}
}

func parseAudioCodec(name string) codecs.Audio {
	switch strings.ToLower(name) {
	case "aac":
		return codecs.AAC
	case "opus":
		return codecs.Opus
	case "mp3":
		return codecs.MP3
	case "flac":
		return codecs.FLAC
	default:
		return codecs.AudioUnknown
	}
}

func parseQuality(name string) quality.Quality {
	switch strings.ToLower(name) {
	case "verylow":
		return quality.VeryLow
	case "low":
		return quality.Low
	case "medium":
		return quality.Medium
	case "high":
		return quality.High
	case "veryhigh":
		return quality.VeryHigh
	default:
		return quality.High
	}
}

func parseFit(name string) media.Fit {
	switch strings.ToLower(name) {
	case "fill":
		return media.FitFill
	case "contain":
		return media.FitContain
	case "cover":
		return media.FitCover
	default:
		return media.FitPassThrough
	}
}
