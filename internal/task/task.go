package task

import (
	"errors"
	"time"
)

// Status is a task's primary lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSnoozed    Status = "snoozed"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
	StatusCancelled  Status = "cancelled"
)

// SnoozeWindow is the fixed snooze duration and the outer decision
// ceiling measured from the first snooze. It is deliberately not
// configurable per call.
const SnoozeWindow = 7 * 24 * time.Hour

var (
	// ErrTerminalState rejects transitions on completed/skipped/cancelled tasks.
	ErrTerminalState = errors.New("task is in a terminal state")
	// ErrSnoozeWindowClosed rejects snoozes after the 7-day ceiling.
	ErrSnoozeWindowClosed = errors.New("snooze window closed")
	// ErrStaleSnoozeState marks rows whose snooze fields are internally
	// inconsistent; eligibility cannot be determined and defaults to no.
	ErrStaleSnoozeState = errors.New("stale snooze state")
	// ErrNotSnoozed rejects wake transitions on tasks that are not snoozed.
	ErrNotSnoozed = errors.New("task is not snoozed")
)

// Task is an actionable unit created from a recommendation or workflow
// step. The snooze fields implement the 7-day forced-decision ceiling:
// FirstSnoozedAt is set once, SnoozeDeadline never moves after that,
// and SnoozedUntil is the inner resurface time updated on each snooze.
type Task struct {
	ID           string `json:"id"`
	CustomerID   string `json:"customer_id"`
	WorkflowType string `json:"workflow_type"`
	Title        string `json:"title"`

	Status           Status `json:"status"`
	RequiresDecision bool   `json:"requires_decision"`
	AutoSkipped      bool   `json:"auto_skipped"`
	SnoozeCount      int    `json:"snooze_count"`

	FirstSnoozedAt      *time.Time `json:"first_snoozed_at,omitempty"`
	SnoozeDeadline      *time.Time `json:"snooze_deadline,omitempty"`
	SnoozedUntil        *time.Time `json:"snoozed_until,omitempty"`
	DecisionRequestedAt *time.Time `json:"decision_requested_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// New returns a pending task created at now.
func New(id, customerID, workflowType, title string, now time.Time) Task {
	return Task{
		ID:           id,
		CustomerID:   customerID,
		WorkflowType: workflowType,
		Title:        title,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
