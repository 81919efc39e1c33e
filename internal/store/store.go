package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store manages engine state in SQLite: tasks, wake triggers, scoring
// configuration rows, and recorded events.
type Store struct {
	DBPath string
	db     *sql.DB
}

// Open opens or creates the state database.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve state db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// Single connection: writers never see SQLITE_BUSY from our own pool.
	db.SetMaxOpenConns(1)

	store := &Store{
		DBPath: absPath,
		db:     db,
	}

	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	workflow_type TEXT NOT NULL,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	requires_decision INTEGER NOT NULL DEFAULT 0,
	auto_skipped INTEGER NOT NULL DEFAULT 0,
	snooze_count INTEGER NOT NULL DEFAULT 0,
	first_snoozed_at TEXT,
	snooze_deadline TEXT,
	snoozed_until TEXT,
	decision_requested_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_status_until ON tasks(status, snoozed_until);
CREATE INDEX IF NOT EXISTS idx_tasks_deadline ON tasks(snooze_deadline);

CREATE TABLE IF NOT EXISTS wake_triggers (
	id TEXT PRIMARY KEY,
	owner_kind TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	config_json TEXT NOT NULL,
	is_fired INTEGER NOT NULL DEFAULT 0,
	evaluated_at TEXT,
	fired_at TEXT,
	last_error TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_triggers_unfired ON wake_triggers(is_fired, kind);

CREATE TABLE IF NOT EXISTS scoring_config (
	key TEXT PRIMARY KEY,
	value_json TEXT NOT NULL,
	value_type TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	updated_by TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS recorded_events (
	id TEXT PRIMARY KEY,
	event_key TEXT NOT NULL,
	payload_json TEXT,
	occurred_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_key ON recorded_events(event_key, occurred_at);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("create state schema: %w", err)
	}
	return nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func encodeTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: encodeTime(*t), Valid: true}
}

func decodeTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func decodeTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
