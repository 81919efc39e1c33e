package task

import "time"

// SnoozeEligibility answers whether a task may be snoozed right now.
type SnoozeEligibility struct {
	Allowed         bool `json:"allowed"`
	DaysRemaining   int  `json:"days_remaining"`
	DeadlineReached bool `json:"deadline_reached"`
}

// CanSnooze is a pure function of now and the task's snooze fields. It
// returns Allowed=false once the deadline has passed, independent of
// whether RequiresDecision has already been set. A row with SnoozedUntil
// but no FirstSnoozedAt/SnoozeDeadline is corrupt; eligibility defaults
// to no and ErrStaleSnoozeState is returned for manual review.
func CanSnooze(t Task, now time.Time) (SnoozeEligibility, error) {
	if t.SnoozedUntil != nil && (t.FirstSnoozedAt == nil || t.SnoozeDeadline == nil) {
		return SnoozeEligibility{}, ErrStaleSnoozeState
	}
	if IsTerminal(t.Status) {
		return SnoozeEligibility{}, nil
	}
	if t.SnoozeDeadline == nil {
		// Never snoozed: the full window is available.
		return SnoozeEligibility{Allowed: true, DaysRemaining: int(SnoozeWindow.Hours() / 24)}, nil
	}
	remaining := t.SnoozeDeadline.Sub(now)
	if remaining <= 0 {
		return SnoozeEligibility{Allowed: false, DaysRemaining: 0, DeadlineReached: true}, nil
	}
	return SnoozeEligibility{Allowed: true, DaysRemaining: int(remaining.Hours() / 24)}, nil
}

// Snooze moves the task to snoozed. The first snooze fixes
// FirstSnoozedAt and SnoozeDeadline = FirstSnoozedAt + SnoozeWindow;
// later snoozes update SnoozedUntil only, capped at the deadline so a
// task can never sleep past its decision ceiling.
func Snooze(t *Task, now time.Time) error {
	elig, err := CanSnooze(*t, now)
	if err != nil {
		return err
	}
	if IsTerminal(t.Status) {
		return ErrTerminalState
	}
	if !elig.Allowed {
		return ErrSnoozeWindowClosed
	}

	if t.FirstSnoozedAt == nil {
		first := now
		deadline := now.Add(SnoozeWindow)
		t.FirstSnoozedAt = &first
		t.SnoozeDeadline = &deadline
	}

	until := now.Add(SnoozeWindow)
	if until.After(*t.SnoozeDeadline) {
		until = *t.SnoozeDeadline
	}
	t.SnoozedUntil = &until
	t.SnoozeCount++
	t.Status = StatusSnoozed
	t.UpdatedAt = now
	return nil
}

// Wake transitions a snoozed task back to pending. Used both by the
// resurface sweep when SnoozedUntil passes and by a firing wake trigger.
func Wake(t *Task, now time.Time) error {
	if t.Status != StatusSnoozed {
		return ErrNotSnoozed
	}
	t.Status = StatusPending
	t.SnoozedUntil = nil
	t.UpdatedAt = now
	return nil
}

// Start moves a pending task into in_progress.
func Start(t *Task, now time.Time) error {
	if IsTerminal(t.Status) {
		return ErrTerminalState
	}
	t.Status = StatusInProgress
	t.UpdatedAt = now
	return nil
}

// MarkRequiresDecision applies the forced-decision transition. It fires
// exactly when now >= SnoozeDeadline and no terminal decision has been
// recorded, regardless of whether the task is pending or snoozed.
// Returns true when the flag was newly set.
func MarkRequiresDecision(t *Task, now time.Time) bool {
	if t.RequiresDecision || IsTerminal(t.Status) {
		return false
	}
	if t.SnoozeDeadline == nil || now.Before(*t.SnoozeDeadline) {
		return false
	}
	t.RequiresDecision = true
	requested := now
	t.DecisionRequestedAt = &requested
	t.UpdatedAt = now
	return true
}

// Complete resolves the task as done and clears any pending decision.
func Complete(t *Task, now time.Time) error {
	if IsTerminal(t.Status) {
		return ErrTerminalState
	}
	t.Status = StatusCompleted
	t.RequiresDecision = false
	completed := now
	t.CompletedAt = &completed
	t.UpdatedAt = now
	return nil
}

// Skip resolves the task as skipped and clears any pending decision.
func Skip(t *Task, now time.Time) error {
	if IsTerminal(t.Status) {
		return ErrTerminalState
	}
	t.Status = StatusSkipped
	t.RequiresDecision = false
	t.UpdatedAt = now
	return nil
}

// DismissWithoutChoice is the single place the forced-decision
// abandonment policy lives: dismissing a decision prompt without an
// explicit choice skips the task and marks it auto-skipped.
func DismissWithoutChoice(t *Task, now time.Time) error {
	if err := Skip(t, now); err != nil {
		return err
	}
	t.AutoSkipped = true
	return nil
}

// Cancel terminates the task without a decision.
func Cancel(t *Task, now time.Time) error {
	if IsTerminal(t.Status) {
		return ErrTerminalState
	}
	t.Status = StatusCancelled
	t.RequiresDecision = false
	t.UpdatedAt = now
	return nil
}
