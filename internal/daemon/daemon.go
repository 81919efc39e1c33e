package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"renewflow/internal/audit"
	"renewflow/internal/notify"
	"renewflow/internal/store"
	"renewflow/internal/trigger"
	"renewflow/internal/workspace"
)

// DefaultDecisionGrace is how long a forced decision may sit unanswered
// before the abandonment sweep resolves it as an auto-skip.
const DefaultDecisionGrace = 72 * time.Hour

// SweepFunc runs one background maintenance pass.
type SweepFunc func(ctx context.Context, now time.Time) (int, error)

type sweep struct {
	name string
	run  SweepFunc
}

// Daemon is a long-running process that evaluates wake triggers and
// enforces the task lifecycle on a fixed interval. Multiple instances
// may run against the same state database: every sweep uses
// conditional updates, so concurrent passes never double-apply a
// transition.
type Daemon struct {
	Workspace     *workspace.Workspace
	Store         *store.Store
	Evaluator     *trigger.Evaluator
	AuditLogger   *audit.Logger
	Notifier      notify.Notifier
	PollInterval  time.Duration
	DecisionGrace time.Duration

	sweeps []sweep
}

// Config holds daemon configuration.
type Config struct {
	Workspace     *workspace.Workspace
	StorePath     string
	PollInterval  time.Duration
	DecisionGrace time.Duration
	Notifications bool
}

// New creates a daemon with the standard sweeps registered.
func New(cfg Config) (*Daemon, error) {
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.DecisionGrace == 0 {
		cfg.DecisionGrace = DefaultDecisionGrace
	}

	auditor := audit.NewLogger(cfg.Workspace.AuditDBPath)
	notifier := notify.Notifier(notify.Log{})
	if cfg.Notifications {
		notifier = &notify.Desktop{Enabled: true}
	}

	d := &Daemon{
		Workspace:     cfg.Workspace,
		Store:         st,
		Evaluator:     trigger.NewEvaluator(st, notifier, auditor),
		AuditLogger:   auditor,
		Notifier:      notifier,
		PollInterval:  cfg.PollInterval,
		DecisionGrace: cfg.DecisionGrace,
	}

	d.sweeps = []sweep{
		{"trigger_evaluate", d.sweepTriggers},
		{"task_resurface", d.sweepResurface},
		{"decision_enforce", d.sweepDecisions},
		{"decision_abandon", d.sweepAbandoned},
	}

	return d, nil
}

// Run starts the daemon run loop.
func (d *Daemon) Run(ctx context.Context) error {
	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	startPayload := map[string]any{
		"workspace":      d.Workspace.Root,
		"poll_interval":  d.PollInterval.String(),
		"decision_grace": d.DecisionGrace.String(),
	}
	if err := d.AuditLogger.LogEvent("daemon", "daemon_started", startPayload); err != nil {
		fmt.Fprintf(os.Stderr, "audit log failed: %v\n", err)
	}

	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stopPayload := map[string]any{
				"workspace": d.Workspace.Root,
			}
			_ = d.AuditLogger.LogEvent("daemon", "daemon_stopped", stopPayload)
			return nil

		case <-ticker.C:
			d.RunSweeps(ctx, time.Now())
		}
	}
}

// RunSweeps executes every registered sweep once. A failing sweep is
// reported and does not stop the others.
func (d *Daemon) RunSweeps(ctx context.Context, now time.Time) {
	for _, sw := range d.sweeps {
		if ctx.Err() != nil {
			return
		}
		applied, err := sw.run(ctx, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sweep %s failed: %v\n", sw.name, err)
			_ = d.AuditLogger.LogEvent("daemon", "sweep_failed", map[string]any{
				"sweep": sw.name,
				"error": err.Error(),
			})
			continue
		}
		if applied > 0 {
			_ = d.AuditLogger.LogEvent("daemon", "sweep_completed", map[string]any{
				"sweep":   sw.name,
				"applied": applied,
			})
		}
	}
}

// Close closes the daemon's store.
func (d *Daemon) Close() error {
	return d.Store.Close()
}
