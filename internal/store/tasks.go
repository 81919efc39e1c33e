package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"renewflow/internal/task"
)

const taskColumns = `id, customer_id, workflow_type, title, status,
	requires_decision, auto_skipped, snooze_count,
	first_snoozed_at, snooze_deadline, snoozed_until, decision_requested_at,
	created_at, updated_at, completed_at`

// CreateTask inserts a task, assigning an id when the caller left it empty.
func (s *Store) CreateTask(t *task.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	_, err := s.db.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.CustomerID, t.WorkflowType, t.Title, string(t.Status),
		boolToInt(t.RequiresDecision), boolToInt(t.AutoSkipped), t.SnoozeCount,
		encodeTimePtr(t.FirstSnoozedAt), encodeTimePtr(t.SnoozeDeadline),
		encodeTimePtr(t.SnoozedUntil), encodeTimePtr(t.DecisionRequestedAt),
		encodeTime(t.CreatedAt), encodeTime(t.UpdatedAt), encodeTimePtr(t.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(id string) (*task.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// UpdateTask persists every mutable field of the task.
func (s *Store) UpdateTask(t task.Task) error {
	res, err := s.db.Exec(`
		UPDATE tasks
		SET status = ?,
		    requires_decision = ?,
		    auto_skipped = ?,
		    snooze_count = ?,
		    first_snoozed_at = ?,
		    snooze_deadline = ?,
		    snoozed_until = ?,
		    decision_requested_at = ?,
		    updated_at = ?,
		    completed_at = ?
		WHERE id = ?
	`,
		string(t.Status), boolToInt(t.RequiresDecision), boolToInt(t.AutoSkipped), t.SnoozeCount,
		encodeTimePtr(t.FirstSnoozedAt), encodeTimePtr(t.SnoozeDeadline),
		encodeTimePtr(t.SnoozedUntil), encodeTimePtr(t.DecisionRequestedAt),
		encodeTime(t.UpdatedAt), encodeTimePtr(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

// ListTasks returns up to limit tasks with the given status, oldest
// first. An empty status lists every task.
func (s *Store) ListTasks(status string, limit int) ([]task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListSnoozedDue returns snoozed tasks whose resurface time has passed
// but whose decision ceiling has not.
func (s *Store) ListSnoozedDue(now time.Time) ([]task.Task, error) {
	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks
		WHERE status = 'snoozed'
		  AND snoozed_until IS NOT NULL AND snoozed_until <= ?
		  AND (snooze_deadline IS NULL OR snooze_deadline > ?)
		ORDER BY snoozed_until ASC
	`, encodeTime(now), encodeTime(now))
	if err != nil {
		return nil, fmt.Errorf("query snoozed due tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListDecisionDue returns non-terminal tasks whose snooze deadline has
// passed and which are not yet flagged for a decision.
func (s *Store) ListDecisionDue(now time.Time) ([]task.Task, error) {
	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks
		WHERE requires_decision = 0
		  AND status NOT IN ('completed', 'skipped', 'cancelled')
		  AND snooze_deadline IS NOT NULL AND snooze_deadline <= ?
		ORDER BY snooze_deadline ASC
	`, encodeTime(now))
	if err != nil {
		return nil, fmt.Errorf("query decision due tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListAbandoned returns tasks flagged for a decision whose request has
// aged past the cutoff without a resolution.
func (s *Store) ListAbandoned(cutoff time.Time) ([]task.Task, error) {
	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks
		WHERE requires_decision = 1
		  AND status NOT IN ('completed', 'skipped', 'cancelled')
		  AND decision_requested_at IS NOT NULL AND decision_requested_at <= ?
		ORDER BY decision_requested_at ASC
	`, encodeTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("query abandoned tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ResurfaceTask conditionally wakes a snoozed task back to pending.
// Returns false when another instance already moved it.
func (s *Store) ResurfaceTask(id string, now time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE tasks
		SET status = 'pending', snoozed_until = NULL, updated_at = ?
		WHERE id = ? AND status = 'snoozed'
	`, encodeTime(now), id)
	if err != nil {
		return false, fmt.Errorf("resurface task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resurface task: %w", err)
	}
	return affected == 1, nil
}

// RequireDecision conditionally sets the forced-decision flag. Returns
// false when the flag was already set or the task is terminal.
func (s *Store) RequireDecision(id string, now time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE tasks
		SET requires_decision = 1, decision_requested_at = ?, updated_at = ?
		WHERE id = ? AND requires_decision = 0
		  AND status NOT IN ('completed', 'skipped', 'cancelled')
	`, encodeTime(now), encodeTime(now), id)
	if err != nil {
		return false, fmt.Errorf("require decision: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("require decision: %w", err)
	}
	return affected == 1, nil
}

// AutoSkipTask conditionally resolves an abandoned decision as an
// auto-skip. Returns false when another instance already resolved it.
func (s *Store) AutoSkipTask(id string, now time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE tasks
		SET status = 'skipped', auto_skipped = 1, requires_decision = 0, updated_at = ?
		WHERE id = ? AND requires_decision = 1
		  AND status NOT IN ('completed', 'skipped', 'cancelled')
	`, encodeTime(now), id)
	if err != nil {
		return false, fmt.Errorf("auto-skip task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("auto-skip task: %w", err)
	}
	return affected == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var status string
	var requiresDecision, autoSkipped int
	var firstSnoozedAt, snoozeDeadline, snoozedUntil, decisionRequestedAt sql.NullString
	var createdAt, updatedAt string
	var completedAt sql.NullString

	err := row.Scan(
		&t.ID, &t.CustomerID, &t.WorkflowType, &t.Title, &status,
		&requiresDecision, &autoSkipped, &t.SnoozeCount,
		&firstSnoozedAt, &snoozeDeadline, &snoozedUntil, &decisionRequestedAt,
		&createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = task.Status(status)
	t.RequiresDecision = requiresDecision == 1
	t.AutoSkipped = autoSkipped == 1
	t.FirstSnoozedAt = decodeTimePtr(firstSnoozedAt)
	t.SnoozeDeadline = decodeTimePtr(snoozeDeadline)
	t.SnoozedUntil = decodeTimePtr(snoozedUntil)
	t.DecisionRequestedAt = decodeTimePtr(decisionRequestedAt)
	t.CreatedAt = decodeTime(createdAt)
	t.UpdatedAt = decodeTime(updatedAt)
	t.CompletedAt = decodeTimePtr(completedAt)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]task.Task, error) {
	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
