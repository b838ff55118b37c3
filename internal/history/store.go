// Package history keeps a sqlite journal of check runs and the change
// events each run reported.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/HendryAvila/modwatch/internal/mods"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeNow is a package-level var so tests can pin timestamps.
var timeNow = time.Now

// DBFile is the journal file name under the data dir.
const DBFile = "history.db"

// Status is the outcome of a run.
type Status string

const (
	StatusOK          Status = "ok"
	StatusQueryFailed Status = "query_failed"
	StatusFailed      Status = "failed"
	// StatusSkipped marks a run that did nothing because mod checking is
	// disabled. Skipped runs are not journaled.
	StatusSkipped Status = "skipped"
)

// Run is one check of one logical server.
type Run struct {
	ID              string        `json:"id"`
	ServerID        string        `json:"server_id"`
	StartedAt       time.Time     `json:"started_at"`
	DurationSeconds float64       `json:"duration_seconds"`
	Mode            mods.Strategy `json:"mode"`
	ModCount        int           `json:"mod_count"`
	Status          Status        `json:"status"`
	Error           string        `json:"error,omitempty"`
}

// Event is a journaled change event.
type Event struct {
	RunID       string         `json:"run_id"`
	ServerID    string         `json:"server_id"`
	Kind        mods.EventKind `json:"kind"`
	WorkshopID  string         `json:"workshop_id,omitempty"`
	Title       string         `json:"title,omitempty"`
	TimeUpdated int64          `json:"time_updated,omitempty"`
	Total       int            `json:"total,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store is the sqlite-backed journal.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) <dataDir>/history.db.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(dataDir, DBFile))
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	// One connection so the pragmas below hold for every statement.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id               TEXT PRIMARY KEY,
			server_id        TEXT    NOT NULL,
			started_at       TEXT    NOT NULL,
			duration_seconds REAL    NOT NULL DEFAULT 0,
			mode             TEXT    NOT NULL DEFAULT '',
			mod_count        INTEGER NOT NULL DEFAULT 0,
			status           TEXT    NOT NULL,
			error            TEXT    NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS events (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT    NOT NULL,
			server_id    TEXT    NOT NULL,
			kind         TEXT    NOT NULL,
			workshop_id  TEXT    NOT NULL DEFAULT '',
			title        TEXT    NOT NULL DEFAULT '',
			time_updated INTEGER NOT NULL DEFAULT 0,
			total        INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT    NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_runs_server   ON runs(server_id, started_at);
		CREATE INDEX IF NOT EXISTS idx_events_server ON events(server_id, id);
		CREATE INDEX IF NOT EXISTS idx_events_run    ON events(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun stores run and its change events in one transaction and
// returns the run id, generating one when run.ID is empty. NoChanges
// events are not journaled.
func (s *Store) RecordRun(ctx context.Context, run Run, events []mods.ChangeEvent) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = timeNow()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("history: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, server_id, started_at, duration_seconds, mode, mod_count, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ServerID, formatTime(run.StartedAt), run.DurationSeconds,
		string(run.Mode), run.ModCount, string(run.Status), run.Error,
	)
	if err != nil {
		return "", fmt.Errorf("history: insert run: %w", err)
	}

	created := formatTime(timeNow())
	for _, e := range events {
		if !e.IsChange() {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (run_id, server_id, kind, workshop_id, title, time_updated, total, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.ServerID, string(e.Kind), e.WorkshopID, e.Title, e.CurrentUpdate, e.Total, created,
		)
		if err != nil {
			return "", fmt.Errorf("history: insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("history: commit: %w", err)
	}
	return run.ID, nil
}

// RecentEvents returns the newest events for a server, newest first.
func (s *Store) RecentEvents(ctx context.Context, serverID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, server_id, kind, workshop_id, title, time_updated, total, created_at
		 FROM events WHERE server_id = ? ORDER BY id DESC LIMIT ?`,
		serverID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var e Event
		var kind, created string
		if err := rows.Scan(&e.RunID, &e.ServerID, &kind, &e.WorkshopID, &e.Title, &e.TimeUpdated, &e.Total, &created); err != nil {
			return nil, fmt.Errorf("history: scan event: %w", err)
		}
		e.Kind = mods.EventKind(kind)
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentRuns returns the newest runs for a server, newest first.
func (s *Store) RecentRuns(ctx context.Context, serverID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, server_id, started_at, duration_seconds, mode, mod_count, status, error
		 FROM runs WHERE server_id = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		serverID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		var r Run
		var started, mode, status string
		if err := rows.Scan(&r.ID, &r.ServerID, &started, &r.DurationSeconds, &mode, &r.ModCount, &status, &r.Error); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.Mode = mods.Strategy(mode)
		r.Status = Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
