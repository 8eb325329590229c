// Package history keeps a SQLite record of finished runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	tier        TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	winner      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	elapsed_ms  INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	report_json TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at DESC);
`

// Record is one stored run.
type Record struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	Tier      string          `json:"tier"`
	Prompt    string          `json:"prompt"`
	Winner    string          `json:"winner"`
	Status    string          `json:"status"`
	Elapsed   time.Duration   `json:"elapsed"`
	Error     string          `json:"error,omitempty"`
	Report    json.RawMessage `json:"report,omitempty"`
}

// Store persists records.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path. Parent directories are created.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces r.
func (s *Store) Save(ctx context.Context, r Record) error {
	report := string(r.Report)
	if report == "" {
		report = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, started_at, tier, prompt, winner, status, elapsed_ms, error, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixMilli(), r.Tier, r.Prompt, r.Winner, r.Status,
		r.Elapsed.Milliseconds(), r.Error, report)
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.ID, err)
	}
	return nil
}

// List returns up to limit records, newest first, without reports.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, tier, prompt, winner, status, elapsed_ms, error
		FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r         Record
			startedMs int64
			elapsedMs int64
		)
		if err := rows.Scan(&r.ID, &startedMs, &r.Tier, &r.Prompt, &r.Winner, &r.Status, &elapsedMs, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMs).UTC()
		r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns one record including its report.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var (
		r         Record
		startedMs int64
		elapsedMs int64
		report    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, tier, prompt, winner, status, elapsed_ms, error, report_json
		FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &startedMs, &r.Tier, &r.Prompt, &r.Winner, &r.Status, &elapsedMs, &r.Error, &report)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	r.StartedAt = time.UnixMilli(startedMs).UTC()
	r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	r.Report = json.RawMessage(report)
	return &r, nil
}
