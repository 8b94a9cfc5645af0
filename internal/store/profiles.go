package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// ProfileSettings is a named, reusable bundle of conversion knobs the
// CLI can apply without re-specifying every flag (spec.md §6's video/
// audio options, flattened to concrete values instead of per-track
// functions since a profile is chosen once, for the whole CLI
// invocation).
type ProfileSettings struct {
	VideoCodec string `json:"video_codec,omitempty"`
	AudioCodec string `json:"audio_codec,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Fit        string `json:"fit,omitempty"`
	Quality    string `json:"quality,omitempty"`
	FrameRate  float64 `json:"frame_rate,omitempty"`
}

// Profiles provides thread-safe-by-the-DB access to named profiles
// stored in SQLite, the way the teacher's internal/config managed
// key-value settings.
type Profiles struct {
	db *sql.DB
}

// NewProfiles creates a Profiles store backed by db.
func NewProfiles(db *sql.DB) *Profiles {
	return &Profiles{db: db}
}

// Get returns the named profile's settings.
func (p *Profiles) Get(name string) (ProfileSettings, bool, error) {
	var raw string
	err := p.db.QueryRow(`SELECT settings FROM profiles WHERE name = ?`, name).Scan(&raw)
	if err == sql.ErrNoRows {
		return ProfileSettings{}, false, nil
	}
	if err != nil {
		return ProfileSettings{}, false, fmt.Errorf("store: get profile %s: %w", name, err)
	}
	var s ProfileSettings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return ProfileSettings{}, false, fmt.Errorf("store: decode profile %s: %w", name, err)
	}
	return s, true, nil
}

// Set persists a named profile, overwriting any existing settings.
func (p *Profiles) Set(name string, s ProfileSettings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("store: encode profile %s: %w", name, err)
	}
	_, err = p.db.Exec(
		`INSERT INTO profiles (name, settings) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET settings = excluded.settings`,
		name, string(raw),
	)
	if err != nil {
		return fmt.Errorf("store: set profile %s: %w", name, err)
	}
	return nil
}

// List returns every stored profile name.
func (p *Profiles) List() ([]string, error) {
	rows, err := p.db.Query(`SELECT name FROM profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list profiles: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
