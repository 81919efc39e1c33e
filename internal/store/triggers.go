package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WakeTrigger is a persisted wake condition attached to a snoozed task
// or a workflow. Config is an opaque JSON document interpreted by the
// trigger package according to Kind.
type WakeTrigger struct {
	ID          string     `json:"id"`
	OwnerKind   string     `json:"owner_kind"`
	OwnerID     string     `json:"owner_id"`
	Kind        string     `json:"kind"`
	ConfigJSON  string     `json:"config_json"`
	IsFired     bool       `json:"is_fired"`
	EvaluatedAt *time.Time `json:"evaluated_at,omitempty"`
	FiredAt     *time.Time `json:"fired_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

const triggerColumns = `id, owner_kind, owner_id, kind, config_json,
	is_fired, evaluated_at, fired_at, last_error, created_at`

// CreateTrigger inserts a wake trigger, assigning an id when the caller
// left it empty.
func (s *Store) CreateTrigger(t *WakeTrigger) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	_, err := s.db.Exec(`
		INSERT INTO wake_triggers (`+triggerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.OwnerKind, t.OwnerID, t.Kind, t.ConfigJSON,
		boolToInt(t.IsFired), encodeTimePtr(t.EvaluatedAt), encodeTimePtr(t.FiredAt),
		t.LastError, encodeTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert wake trigger: %w", err)
	}
	return nil
}

// GetTrigger retrieves a wake trigger by id.
func (s *Store) GetTrigger(id string) (*WakeTrigger, error) {
	row := s.db.QueryRow(`SELECT `+triggerColumns+` FROM wake_triggers WHERE id = ?`, id)
	t, err := scanTrigger(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("wake trigger %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get wake trigger: %w", err)
	}
	return t, nil
}

// ListUnfiredTriggers returns every trigger still awaiting its
// condition, oldest first.
func (s *Store) ListUnfiredTriggers() ([]WakeTrigger, error) {
	rows, err := s.db.Query(`
		SELECT ` + triggerColumns + ` FROM wake_triggers
		WHERE is_fired = 0
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query unfired triggers: %w", err)
	}
	defer rows.Close()
	return scanTriggers(rows)
}

// ListTriggers returns up to limit triggers, newest first.
func (s *Store) ListTriggers(limit int) ([]WakeTrigger, error) {
	rows, err := s.db.Query(`
		SELECT `+triggerColumns+` FROM wake_triggers
		ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query triggers: %w", err)
	}
	defer rows.Close()
	return scanTriggers(rows)
}

// FireTrigger atomically marks a trigger fired. The WHERE clause on
// is_fired makes it a compare-and-set: exactly one caller observes
// true, every other caller observes false and must not act.
func (s *Store) FireTrigger(id string, now time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE wake_triggers
		SET is_fired = 1, fired_at = ?, last_error = ''
		WHERE id = ? AND is_fired = 0
	`, encodeTime(now), id)
	if err != nil {
		return false, fmt.Errorf("fire trigger: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fire trigger: %w", err)
	}
	return affected == 1, nil
}

// MarkTriggerEvaluated records the most recent evaluation time.
func (s *Store) MarkTriggerEvaluated(id string, now time.Time) error {
	_, err := s.db.Exec(`
		UPDATE wake_triggers SET evaluated_at = ? WHERE id = ?
	`, encodeTime(now), id)
	if err != nil {
		return fmt.Errorf("mark trigger evaluated: %w", err)
	}
	return nil
}

// SetTriggerError records an evaluation failure without firing.
func (s *Store) SetTriggerError(id, message string, now time.Time) error {
	_, err := s.db.Exec(`
		UPDATE wake_triggers SET last_error = ?, evaluated_at = ? WHERE id = ?
	`, message, encodeTime(now), id)
	if err != nil {
		return fmt.Errorf("set trigger error: %w", err)
	}
	return nil
}

func scanTrigger(row rowScanner) (*WakeTrigger, error) {
	var t WakeTrigger
	var isFired int
	var evaluatedAt, firedAt sql.NullString
	var lastError sql.NullString
	var createdAt string

	err := row.Scan(
		&t.ID, &t.OwnerKind, &t.OwnerID, &t.Kind, &t.ConfigJSON,
		&isFired, &evaluatedAt, &firedAt, &lastError, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	t.IsFired = isFired == 1
	t.EvaluatedAt = decodeTimePtr(evaluatedAt)
	t.FiredAt = decodeTimePtr(firedAt)
	if lastError.Valid {
		t.LastError = lastError.String
	}
	t.CreatedAt = decodeTime(createdAt)
	return &t, nil
}

func scanTriggers(rows *sql.Rows) ([]WakeTrigger, error) {
	var triggers []WakeTrigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wake trigger: %w", err)
		}
		triggers = append(triggers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wake triggers: %w", err)
	}
	return triggers, nil
}
