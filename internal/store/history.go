// Package store persists run and attempt history to SQLite.
// The history is written best-effort: a nil store is a no-op and a failed
// insert only logs. Post-mortems query the database directly; the repair
// loop never reads it back.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"mend/internal/logging"
)

// HistoryStore records repair runs and their attempts.
type HistoryStore struct {
	db *sql.DB
	mu sync.Mutex
}

// AttemptRecord is one loop iteration's persisted outcome.
type AttemptRecord struct {
	Index          int
	BuildSucceeded bool
	Kind           string // compile, linker, unrecognized, or empty on success
	Diagnostic     string // selected diagnostic, rendered
	PatchedFile    string // empty when no patch was applied
	Failure        string // repair-stage failure, when any
}

// Open initializes the history database at path, creating directories and
// schema as needed.
func Open(path string) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreWarn("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreWarn("failed to set busy_timeout: %v", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("history store ready at %s", path)
	return &HistoryStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		project     TEXT NOT NULL,
		outcome     TEXT,
		attempts    INTEGER NOT NULL DEFAULT 0,
		started_at  TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS attempts (
		run_id          TEXT NOT NULL REFERENCES runs(id),
		idx             INTEGER NOT NULL,
		build_succeeded INTEGER NOT NULL,
		kind            TEXT,
		diagnostic      TEXT,
		patched_file    TEXT,
		failure         TEXT,
		recorded_at     TIMESTAMP NOT NULL,
		PRIMARY KEY (run_id, idx)
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *HistoryStore) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun registers a new run.
func (s *HistoryStore) BeginRun(runID, project string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, project, started_at) VALUES (?, ?, ?)`,
		runID, project, time.Now().UTC())
	if err != nil {
		logging.StoreWarn("failed to record run start: %v", err)
	}
}

// FinishRun stamps a run's terminal outcome and attempt count.
func (s *HistoryStore) FinishRun(runID, outcome string, attempts int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`UPDATE runs SET outcome = ?, attempts = ?, finished_at = ? WHERE id = ?`,
		outcome, attempts, time.Now().UTC(), runID)
	if err != nil {
		logging.StoreWarn("failed to record run outcome: %v", err)
	}
}

// RecordAttempt persists one attempt's outcome.
func (s *HistoryStore) RecordAttempt(runID string, a AttemptRecord) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO attempts
		 (run_id, idx, build_succeeded, kind, diagnostic, patched_file, failure, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, a.Index, boolToInt(a.BuildSucceeded), a.Kind, a.Diagnostic,
		a.PatchedFile, a.Failure, time.Now().UTC())
	if err != nil {
		logging.StoreWarn("failed to record attempt %d: %v", a.Index, err)
	}
}

// RunAttempts returns the recorded attempts of a run in order. Used by tests
// and ad-hoc inspection.
func (s *HistoryStore) RunAttempts(runID string) ([]AttemptRecord, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT idx, build_succeeded, kind, diagnostic, patched_file, failure
		 FROM attempts WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var a AttemptRecord
		var ok int
		if err := rows.Scan(&a.Index, &ok, &a.Kind, &a.Diagnostic, &a.PatchedFile, &a.Failure); err != nil {
			return nil, err
		}
		a.BuildSucceeded = ok != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
