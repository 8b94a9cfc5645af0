package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jota2rz/vdj-video-sync/server/internal/codecs"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
)

// CapabilityCache persists encoder capability probe results, the same
// Get/Set shape the teacher's internal/bpm.Cache used for BPM values,
// applied to a different key: (backend, codec, params) instead of
// (file path, mod time).
type CapabilityCache struct {
	db *sql.DB
}

// NewCapabilityCache creates a CapabilityCache backed by db.
func NewCapabilityCache(db *sql.DB) *CapabilityCache {
	return &CapabilityCache{db: db}
}

// Get retrieves a cached encodable verdict, returning ok=false on a
// cache miss.
func (c *CapabilityCache) Get(backend, kind, codec, params string) (encodable bool, ok bool) {
	var v int
	err := c.db.QueryRow(
		`SELECT encodable FROM capability_cache WHERE backend = ? AND kind = ? AND codec = ? AND params = ?`,
		backend, kind, codec, params,
	).Scan(&v)
	if err != nil {
		return false, false
	}
	return v != 0, true
}

// Set stores an encodable verdict.
func (c *CapabilityCache) Set(backend, kind, codec, params string, encodable bool) error {
	v := 0
	if encodable {
		v = 1
	}
	_, err := c.db.Exec(
		`INSERT INTO capability_cache (backend, kind, codec, params, encodable) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(backend, kind, codec, params) DO UPDATE SET encodable = excluded.encodable, checked_at = CURRENT_TIMESTAMP`,
		backend, kind, codec, params, v,
	)
	return err
}

// Cleanup drops every cached verdict for a backend name no longer in
// use, the way internal/bpm.Cache.Cleanup pruned entries for files
// that no longer exist on disk.
func (c *CapabilityCache) Cleanup(liveBackends []string) {
	live := make(map[string]bool, len(liveBackends))
	for _, b := range liveBackends {
		live[b] = true
	}

	rows, err := c.db.Query(`SELECT DISTINCT backend FROM capability_cache`)
	if err != nil {
		slog.Warn("store: capability cache cleanup query failed", "error", err)
		return
	}
	var stale []string
	for rows.Next() {
		var backend string
		if rows.Scan(&backend) == nil && !live[backend] {
			stale = append(stale, backend)
		}
	}
	rows.Close()

	for _, backend := range stale {
		if _, err := c.db.Exec(`DELETE FROM capability_cache WHERE backend = ?`, backend); err != nil {
			slog.Warn("store: capability cache cleanup delete failed", "backend", backend, "error", err)
		}
	}
	if len(stale) > 0 {
		slog.Info("store: capability cache cleanup", "removed_backends", len(stale))
	}
}

// CachingBackend wraps a media.EncoderBackend, consulting and
// populating a CapabilityCache around every CanEncodeVideo/
// CanEncodeAudio call (CanEncodeSubtitles is passed through uncached) so a
// backend that must spawn a trial encode (spec.md §4.2's
// OverReportsSupport path) only pays that cost once per
// (codec, params) combination across CLI invocations.
type CachingBackend struct {
	media.EncoderBackend
	cache *CapabilityCache
}

// NewCachingBackend wraps backend with cache.
func NewCachingBackend(backend media.EncoderBackend, cache *CapabilityCache) *CachingBackend {
	return &CachingBackend{EncoderBackend: backend, cache: cache}
}

func (b *CachingBackend) CanEncodeVideo(codec codecs.Video, width, height int, bitrate int64, opts media.VideoEncoderOptions) bool {
	params := fmt.Sprintf("%dx%d@%d", width, height, bitrate)
	if v, ok := b.cache.Get(b.Name(), "video", codec.String(), params); ok {
		return v
	}
	v := b.EncoderBackend.CanEncodeVideo(codec, width, height, bitrate, opts)
	if err := b.cache.Set(b.Name(), "video", codec.String(), params, v); err != nil {
		slog.Warn("store: cache video capability", "error", err)
	}
	return v
}

func (b *CachingBackend) CanEncodeAudio(codec codecs.Audio, channels, sampleRate int, bitrate int64) bool {
	params := fmt.Sprintf("%dch@%dhz@%d", channels, sampleRate, bitrate)
	if v, ok := b.cache.Get(b.Name(), "audio", codec.String(), params); ok {
		return v
	}
	v := b.EncoderBackend.CanEncodeAudio(codec, channels, sampleRate, bitrate)
	if err := b.cache.Set(b.Name(), "audio", codec.String(), params, v); err != nil {
		slog.Warn("store: cache audio capability", "error", err)
	}
	return v
}

// OverReportsSupport is always false on the cached view: the whole
// point of CachingBackend is to absorb the cost of a trial-encode
// fallback once, so capability.Prober must not re-run the trial encode
// on every call through the already-verified cached verdicts.
func (b *CachingBackend) OverReportsSupport() bool { return false }
