package trigger

import (
	"context"
	"fmt"
	"log"
	"time"

	"renewflow/internal/actions"
	"renewflow/internal/audit"
	"renewflow/internal/notify"
	"renewflow/internal/store"
	"renewflow/internal/task"
)

// EventMatcher answers whether a named event occurred at or after a
// point in time.
type EventMatcher interface {
	HasEventSince(eventKey string, since time.Time) (bool, error)
}

// Evaluator sweeps unfired triggers and fires those whose condition
// holds. Firing is idempotent across evaluator instances: the store's
// compare-and-set on is_fired guarantees at most one firing per
// trigger, so the wake and notification side effects run once.
type Evaluator struct {
	Store    *store.Store
	Matcher  EventMatcher
	Notifier notify.Notifier
	Audit    *audit.Logger
	Actions  actions.Executor
}

// NewEvaluator wires an evaluator that matches event triggers against
// the store's recorded events. Workflow-owner fires resume through the
// Noop executor until a real integration is injected.
func NewEvaluator(st *store.Store, notifier notify.Notifier, auditor *audit.Logger) *Evaluator {
	return &Evaluator{
		Store:    st,
		Matcher:  st,
		Notifier: notifier,
		Audit:    auditor,
		Actions:  actions.Noop{},
	}
}

// EvaluateDue checks every unfired trigger and fires the due ones.
// Returns the ids of triggers fired by this call. A trigger whose
// config cannot be parsed is recorded and skipped, never fired. Errors
// after a successful fire are logged but do not undo the fire: a
// trigger fires at most once.
func (e *Evaluator) EvaluateDue(ctx context.Context, now time.Time) ([]string, error) {
	triggers, err := e.Store.ListUnfiredTriggers()
	if err != nil {
		return nil, fmt.Errorf("list unfired triggers: %w", err)
	}

	var fired []string
	for _, tr := range triggers {
		if err := ctx.Err(); err != nil {
			return fired, err
		}

		cfg, err := ParseConfig(Kind(tr.Kind), tr.ConfigJSON)
		if err != nil {
			if serr := e.Store.SetTriggerError(tr.ID, err.Error(), now); serr != nil {
				log.Printf("trigger %s: record config error: %v", tr.ID, serr)
			}
			continue
		}

		if err := e.Store.MarkTriggerEvaluated(tr.ID, now); err != nil {
			log.Printf("trigger %s: mark evaluated: %v", tr.ID, err)
		}

		due, err := e.isDue(tr, cfg, now)
		if err != nil {
			if serr := e.Store.SetTriggerError(tr.ID, err.Error(), now); serr != nil {
				log.Printf("trigger %s: record evaluation error: %v", tr.ID, serr)
			}
			continue
		}
		if !due {
			continue
		}

		won, err := e.Store.FireTrigger(tr.ID, now)
		if err != nil {
			log.Printf("trigger %s: fire: %v", tr.ID, err)
			continue
		}
		if !won {
			// Another instance fired it between our list and update.
			continue
		}

		fired = append(fired, tr.ID)
		e.afterFire(ctx, tr, now)
	}

	return fired, nil
}

func (e *Evaluator) isDue(tr store.WakeTrigger, cfg Config, now time.Time) (bool, error) {
	switch Kind(tr.Kind) {
	case KindDate:
		return !now.Before(*cfg.FireAt), nil
	case KindEvent:
		return e.Matcher.HasEventSince(cfg.EventKey, tr.CreatedAt)
	}
	return false, fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, tr.Kind)
}

// afterFire wakes the owning task and notifies. Failures here are
// logged only: the fire already happened and must not repeat.
func (e *Evaluator) afterFire(ctx context.Context, tr store.WakeTrigger, now time.Time) {
	payload := map[string]any{
		"trigger_id": tr.ID,
		"kind":       tr.Kind,
		"owner_kind": tr.OwnerKind,
		"owner_id":   tr.OwnerID,
	}
	if err := e.Audit.LogEvent("trigger", "trigger_fired", payload); err != nil {
		log.Printf("trigger %s: audit log failed: %v", tr.ID, err)
	}

	if tr.OwnerKind != OwnerTask {
		// A waking workflow resumes through its action handler; the
		// engine only sequences the call.
		if e.Actions != nil {
			if _, err := e.Actions.Execute(ctx, tr.OwnerID, map[string]any{
				"trigger_id":   tr.ID,
				"trigger_kind": tr.Kind,
			}); err != nil {
				log.Printf("trigger %s: resume workflow %s via %s: %v", tr.ID, tr.OwnerID, e.Actions.Name(), err)
			}
		}
		e.notify("⏰ Renewflow Workflow Awake",
			fmt.Sprintf("workflow %s woke on %s trigger", tr.OwnerID, tr.Kind))
		return
	}

	t, err := e.Store.GetTask(tr.OwnerID)
	if err != nil {
		log.Printf("trigger %s: load owning task %s: %v", tr.ID, tr.OwnerID, err)
		return
	}

	if err := task.Wake(t, now); err != nil {
		// Pending or terminal already; nothing to resurface.
		log.Printf("trigger %s: task %s not woken: %v", tr.ID, t.ID, err)
		return
	}
	if err := e.Store.UpdateTask(*t); err != nil {
		log.Printf("trigger %s: persist woken task %s: %v", tr.ID, t.ID, err)
		return
	}

	title, message := notify.FormatTaskWake(t.Title, t.CustomerID, tr.Kind)
	e.notify(title, message)
}

func (e *Evaluator) notify(title, message string) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.Send(title, message); err != nil {
		log.Printf("notification failed: %v", err)
	}
}
