package daemon

import (
	"context"
	"testing"
	"time"

	"renewflow/internal/store"
	"renewflow/internal/task"
	"renewflow/internal/trigger"
	"renewflow/internal/workspace"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	root := t.TempDir()
	ws, err := workspace.Resolve(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.EnsureDirs(); err != nil {
		t.Fatal(err)
	}

	d, err := New(Config{
		Workspace: ws,
		StorePath: ws.StateDBPath,
	})
	if err != nil {
		t.Fatalf("create daemon: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func createSnoozed(t *testing.T, st *store.Store, now time.Time) *task.Task {
	t.Helper()
	tk := task.New("", "cust-1", "renewal", "Prep call", now)
	if err := task.Snooze(&tk, now); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateTask(&tk); err != nil {
		t.Fatal(err)
	}
	return &tk
}

func TestResurfaceSweep(t *testing.T) {
	d := newTestDaemon(t)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	tk := createSnoozed(t, d.Store, now)

	// Resurface time a day out, well inside the decision ceiling.
	until := now.Add(24 * time.Hour)
	tk.SnoozedUntil = &until
	if err := d.Store.UpdateTask(*tk); err != nil {
		t.Fatal(err)
	}

	// Before snoozed_until: nothing to do.
	d.RunSweeps(context.Background(), now.Add(time.Hour))
	got, err := d.Store.GetTask(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusSnoozed {
		t.Fatalf("status = %s, want still snoozed", got.Status)
	}

	// Once the resurface time passes but the deadline has not, the task
	// wakes up.
	later := tk.SnoozedUntil.Add(time.Minute)
	d.RunSweeps(context.Background(), later)
	got, err = d.Store.GetTask(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
	if got.SnoozedUntil != nil {
		t.Fatal("snoozed_until not cleared")
	}
}

func TestDecisionSweep(t *testing.T) {
	d := newTestDaemon(t)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	tk := createSnoozed(t, d.Store, now)

	deadline := tk.SnoozeDeadline

	// Just before the ceiling: no decision demanded.
	d.RunSweeps(context.Background(), deadline.Add(-time.Minute))
	got, err := d.Store.GetTask(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RequiresDecision {
		t.Fatal("decision demanded before the deadline")
	}

	// At the ceiling: the flag is set exactly once.
	d.RunSweeps(context.Background(), deadline.Add(time.Minute))
	got, err = d.Store.GetTask(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.RequiresDecision || got.DecisionRequestedAt == nil {
		t.Fatalf("decision not demanded: %+v", got)
	}
	first := *got.DecisionRequestedAt

	d.RunSweeps(context.Background(), deadline.Add(2*time.Hour))
	got, err = d.Store.GetTask(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.DecisionRequestedAt.Equal(first) {
		t.Fatalf("decision_requested_at moved: %v -> %v", first, got.DecisionRequestedAt)
	}
}

func TestAbandonSweep(t *testing.T) {
	d := newTestDaemon(t)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	tk := createSnoozed(t, d.Store, now)
	deadline := *tk.SnoozeDeadline

	d.RunSweeps(context.Background(), deadline.Add(time.Minute))

	// Within the grace period the task stays put.
	d.RunSweeps(context.Background(), deadline.Add(d.DecisionGrace-time.Hour))
	got, err := d.Store.GetTask(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status == task.StatusSkipped {
		t.Fatal("auto-skipped inside the grace period")
	}

	// Past the grace period the decision is resolved as auto-skip.
	d.RunSweeps(context.Background(), deadline.Add(d.DecisionGrace+2*time.Minute))
	got, err = d.Store.GetTask(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusSkipped || !got.AutoSkipped {
		t.Fatalf("task = %+v, want auto-skipped", got)
	}
}

func TestAbandonSweepSkipsAnsweredDecisions(t *testing.T) {
	d := newTestDaemon(t)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	tk := createSnoozed(t, d.Store, now)
	deadline := *tk.SnoozeDeadline

	d.RunSweeps(context.Background(), deadline.Add(time.Minute))

	// The CSM answers the decision by completing the task.
	got, err := d.Store.GetTask(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := task.Complete(got, deadline.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := d.Store.UpdateTask(*got); err != nil {
		t.Fatal(err)
	}

	d.RunSweeps(context.Background(), deadline.Add(d.DecisionGrace+time.Hour))
	got, err = d.Store.GetTask(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusCompleted || got.AutoSkipped {
		t.Fatalf("completed task was touched: %+v", got)
	}
}

func TestTriggerSweepFiresAndWakes(t *testing.T) {
	d := newTestDaemon(t)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	tk := createSnoozed(t, d.Store, now)

	tr := store.WakeTrigger{
		OwnerKind:  trigger.OwnerTask,
		OwnerID:    tk.ID,
		Kind:       string(trigger.KindDate),
		ConfigJSON: trigger.DateConfigJSON(now.Add(24 * time.Hour)),
		CreatedAt:  now,
	}
	if err := d.Store.CreateTrigger(&tr); err != nil {
		t.Fatal(err)
	}

	// The trigger fires well before the snoozed_until would resurface it.
	d.RunSweeps(context.Background(), now.Add(24*time.Hour))

	got, err := d.Store.GetTask(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusPending {
		t.Fatalf("status = %s, want pending after trigger fired", got.Status)
	}

	loaded, err := d.Store.GetTrigger(tr.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.IsFired {
		t.Fatal("trigger not marked fired")
	}
}

func TestSweepRegistryOrder(t *testing.T) {
	d := newTestDaemon(t)
	want := []string{"trigger_evaluate", "task_resurface", "decision_enforce", "decision_abandon"}
	if len(d.sweeps) != len(want) {
		t.Fatalf("sweeps = %d, want %d", len(d.sweeps), len(want))
	}
	for i, sw := range d.sweeps {
		if sw.name != want[i] {
			t.Fatalf("sweep %d = %s, want %s", i, sw.name, want[i])
		}
	}
}
