// Package store is SQLite-backed (modernc.org/sqlite) persistence for
// the CLI: named conversion profiles and a cache of encoder capability
// probe results, adapted from the teacher's internal/config +
// internal/db pair.
package store

import (
	"database/sql"
	"log/slog"

	_ "modernc.org/sqlite"
)

// Open initializes the SQLite database at path and ensures the schema
// exists, the same pragma set and open/schema split the teacher's
// internal/db.Open used.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			slog.Warn("store: pragma failed", "pragma", p, "error", err)
		}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS profiles (
		name       TEXT PRIMARY KEY,
		settings   TEXT NOT NULL, -- JSON-encoded ProfileSettings
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS capability_cache (
		backend    TEXT NOT NULL,
		kind       TEXT NOT NULL, -- "video" or "audio"
		codec      TEXT NOT NULL,
		params     TEXT NOT NULL, -- canonicalized (w,h,bitrate) or (channels,rate,bitrate)
		encodable  INTEGER NOT NULL,
		checked_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (backend, kind, codec, params)
	);
	`
	_, err := db.Exec(schema)
	return err
}
