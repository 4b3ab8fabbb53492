// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具
//
// Package history keeps a sqlite log of finished sessions.

package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ZSC714725/cdripper/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	disc_id     TEXT NOT NULL DEFAULT '',
	device      TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	expected    INTEGER NOT NULL DEFAULT 0,
	produced    INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_finished ON sessions(finished_at);
`

// timeLayout sorts lexically in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const columns = `id, disc_id, device, state, expected, produced, error, started_at, finished_at`

// Store is a session history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path of the database file
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores r, replacing an earlier record of the same session.
func (s *Store) Record(ctx context.Context, r session.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DiscID, r.Device, string(r.State), r.Expected, r.Produced, r.Error,
		formatTime(r.Started), formatTime(r.Finished),
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", r.ID, err)
	}
	return nil
}

// List returns up to limit records, most recently finished first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]session.Record, error) {
	query := `SELECT ` + columns + ` FROM sessions ORDER BY finished_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Record
	for rows.Next() {
		var (
			r                 session.Record
			state             string
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.DiscID, &r.Device, &state, &r.Expected, &r.Produced, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		r.State = session.State(state)
		r.Started = parseTime(started)
		r.Finished = parseTime(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
