package daemon

import (
	"context"
	"fmt"
	"os"
	"time"

	"renewflow/internal/notify"
)

// sweepTriggers evaluates unfired wake triggers and fires the due ones.
func (d *Daemon) sweepTriggers(ctx context.Context, now time.Time) (int, error) {
	fired, err := d.Evaluator.EvaluateDue(ctx, now)
	if err != nil {
		return 0, err
	}
	return len(fired), nil
}

// sweepResurface wakes snoozed tasks whose snoozed_until has passed but
// whose snooze deadline has not.
func (d *Daemon) sweepResurface(_ context.Context, now time.Time) (int, error) {
	due, err := d.Store.ListSnoozedDue(now)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, t := range due {
		won, err := d.Store.ResurfaceTask(t.ID, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resurface task %s: %v\n", t.ID, err)
			continue
		}
		if !won {
			continue
		}
		applied++
		_ = d.AuditLogger.LogEvent("daemon", "task_resurfaced", map[string]any{
			"task_id":     t.ID,
			"customer_id": t.CustomerID,
		})
	}
	return applied, nil
}

// sweepDecisions flags tasks past their 7-day snooze ceiling as
// requiring a decision and notifies the owner.
func (d *Daemon) sweepDecisions(_ context.Context, now time.Time) (int, error) {
	due, err := d.Store.ListDecisionDue(now)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, t := range due {
		won, err := d.Store.RequireDecision(t.ID, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "require decision on task %s: %v\n", t.ID, err)
			continue
		}
		if !won {
			continue
		}
		applied++
		_ = d.AuditLogger.LogEvent("daemon", "decision_required", map[string]any{
			"task_id":     t.ID,
			"customer_id": t.CustomerID,
		})
		title, message := notify.FormatDecisionRequired(t.Title, t.CustomerID)
		if err := d.Notifier.Send(title, message); err != nil {
			fmt.Fprintf(os.Stderr, "notification failed: %v\n", err)
		}
	}
	return applied, nil
}

// sweepAbandoned resolves decisions nobody answered within the grace
// period as auto-skips.
func (d *Daemon) sweepAbandoned(_ context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-d.DecisionGrace)
	abandoned, err := d.Store.ListAbandoned(cutoff)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, t := range abandoned {
		won, err := d.Store.AutoSkipTask(t.ID, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "auto-skip task %s: %v\n", t.ID, err)
			continue
		}
		if !won {
			continue
		}
		applied++
		_ = d.AuditLogger.LogEvent("daemon", "task_auto_skipped", map[string]any{
			"task_id":     t.ID,
			"customer_id": t.CustomerID,
		})
		title, message := notify.FormatAutoSkipped(t.Title, t.CustomerID)
		if err := d.Notifier.Send(title, message); err != nil {
			fmt.Fprintf(os.Stderr, "notification failed: %v\n", err)
		}
	}
	return applied, nil
}
