package trigger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"renewflow/internal/actions"
	"renewflow/internal/audit"
	"renewflow/internal/store"
	"renewflow/internal/task"
)

type recordingNotifier struct {
	mu    sync.Mutex
	sends []string
}

func (r *recordingNotifier) Send(title, message string) error {
	r.mu.Lock()
	r.sends = append(r.sends, title+": "+message)
	r.mu.Unlock()
	return nil
}

func newTestEvaluator(t *testing.T) (*Evaluator, *store.Store, *recordingNotifier) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "state.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	notifier := &recordingNotifier{}
	eval := NewEvaluator(st, notifier, audit.NewLogger(filepath.Join(dir, "audit.sqlite")))
	return eval, st, notifier
}

func snoozedTask(t *testing.T, st *store.Store, now time.Time) *task.Task {
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

func TestParseConfig(t *testing.T) {
	fireAt := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	cfg, err := ParseConfig(KindDate, DateConfigJSON(fireAt))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FireAt == nil || !cfg.FireAt.Equal(fireAt) {
		t.Fatalf("fire_at = %v, want %v", cfg.FireAt, fireAt)
	}

	cfg, err = ParseConfig(KindEvent, EventConfigJSON("support.ticket_closed"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EventKey != "support.ticket_closed" {
		t.Fatalf("event_key = %q", cfg.EventKey)
	}

	cases := []struct {
		kind Kind
		json string
	}{
		{KindDate, `{}`},
		{KindDate, `{"event_key":"x"}`},
		{KindEvent, `{}`},
		{KindEvent, `{"fire_at":"2026-09-01T00:00:00Z"}`},
		{Kind("cron"), `{}`},
		{KindDate, `not json`},
	}
	for _, tc := range cases {
		if _, err := ParseConfig(tc.kind, tc.json); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("ParseConfig(%s, %s): err = %v, want ErrInvalidConfig", tc.kind, tc.json, err)
		}
	}
}

func TestEvaluateDateTrigger(t *testing.T) {
	eval, st, notifier := newTestEvaluator(t)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	tk := snoozedTask(t, st, now)

	tr := store.WakeTrigger{
		OwnerKind:  OwnerTask,
		OwnerID:    tk.ID,
		Kind:       string(KindDate),
		ConfigJSON: DateConfigJSON(now.Add(time.Hour)),
		CreatedAt:  now,
	}
	if err := st.CreateTrigger(&tr); err != nil {
		t.Fatal(err)
	}

	// Before the fire time: nothing happens.
	fired, err := eval.EvaluateDue(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 0 {
		t.Fatalf("fired early: %v", fired)
	}

	// At the fire time: fires and wakes the task.
	fired, err = eval.EvaluateDue(context.Background(), now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 1 || fired[0] != tr.ID {
		t.Fatalf("fired = %v, want [%s]", fired, tr.ID)
	}

	woken, err := st.GetTask(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if woken.Status != task.StatusPending {
		t.Fatalf("task status = %s, want pending", woken.Status)
	}
	if len(notifier.sends) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.sends))
	}

	// Re-evaluation never re-fires.
	fired, err = eval.EvaluateDue(context.Background(), now.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 0 {
		t.Fatalf("re-fired: %v", fired)
	}
}

func TestEvaluateEventTrigger(t *testing.T) {
	eval, st, _ := newTestEvaluator(t)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	tk := snoozedTask(t, st, now)

	tr := store.WakeTrigger{
		OwnerKind:  OwnerTask,
		OwnerID:    tk.ID,
		Kind:       string(KindEvent),
		ConfigJSON: EventConfigJSON("support.ticket_closed"),
		CreatedAt:  now,
	}
	if err := st.CreateTrigger(&tr); err != nil {
		t.Fatal(err)
	}

	// Events before the trigger existed do not count.
	if _, err := st.RecordEvent("support.ticket_closed", "", now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	fired, err := eval.EvaluateDue(context.Background(), now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 0 {
		t.Fatalf("fired on a pre-existing event: %v", fired)
	}

	// A fresh occurrence fires it.
	if _, err := st.RecordEvent("support.ticket_closed", "", now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	fired, err = eval.EvaluateDue(context.Background(), now.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 1 {
		t.Fatalf("fired = %v, want one", fired)
	}

	woken, err := st.GetTask(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if woken.Status != task.StatusPending {
		t.Fatalf("task status = %s, want pending", woken.Status)
	}
}

func TestEvaluateInvalidConfigIsRecordedNotFired(t *testing.T) {
	eval, st, _ := newTestEvaluator(t)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	tr := store.WakeTrigger{
		OwnerKind:  OwnerTask,
		OwnerID:    "t-missing",
		Kind:       string(KindEvent),
		ConfigJSON: `{}`,
		CreatedAt:  now,
	}
	if err := st.CreateTrigger(&tr); err != nil {
		t.Fatal(err)
	}

	fired, err := eval.EvaluateDue(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 0 {
		t.Fatalf("invalid trigger fired: %v", fired)
	}

	got, err := st.GetTrigger(tr.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastError == "" {
		t.Fatal("config error not recorded")
	}
	if got.IsFired {
		t.Fatal("invalid trigger marked fired")
	}
}

func TestEvaluateWorkflowOwnerResumesViaExecutor(t *testing.T) {
	eval, st, notifier := newTestEvaluator(t)
	mock := &actions.Mock{}
	eval.Actions = mock
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	tr := store.WakeTrigger{
		OwnerKind:  OwnerWorkflow,
		OwnerID:    "wf-1",
		Kind:       string(KindDate),
		ConfigJSON: DateConfigJSON(now),
		CreatedAt:  now,
	}
	if err := st.CreateTrigger(&tr); err != nil {
		t.Fatal(err)
	}

	fired, err := eval.EvaluateDue(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 1 {
		t.Fatalf("fired = %v, want one", fired)
	}
	if len(notifier.sends) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.sends))
	}

	calls := mock.Calls()
	if len(calls) != 1 || calls[0].ActionID != "wf-1" {
		t.Fatalf("executor calls = %+v, want one for wf-1", calls)
	}

	// An executor failure never un-fires the trigger.
	failing := store.WakeTrigger{
		OwnerKind:  OwnerWorkflow,
		OwnerID:    "wf-2",
		Kind:       string(KindDate),
		ConfigJSON: DateConfigJSON(now),
		CreatedAt:  now,
	}
	if err := st.CreateTrigger(&failing); err != nil {
		t.Fatal(err)
	}
	mock.Err = errors.New("crm unavailable")
	fired, err = eval.EvaluateDue(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 1 {
		t.Fatalf("fired = %v, want one despite executor failure", fired)
	}
	got, err := st.GetTrigger(failing.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsFired {
		t.Fatal("executor failure un-fired the trigger")
	}
}

func TestEvaluateConcurrentAtMostOnce(t *testing.T) {
	eval, st, notifier := newTestEvaluator(t)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	tk := snoozedTask(t, st, now)

	tr := store.WakeTrigger{
		OwnerKind:  OwnerTask,
		OwnerID:    tk.ID,
		Kind:       string(KindDate),
		ConfigJSON: DateConfigJSON(now),
		CreatedAt:  now,
	}
	if err := st.CreateTrigger(&tr); err != nil {
		t.Fatal(err)
	}

	const instances = 8
	var wg sync.WaitGroup
	totals := make(chan int, instances)
	for i := 0; i < instances; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fired, err := eval.EvaluateDue(context.Background(), now)
			if err != nil {
				t.Errorf("evaluate: %v", err)
				return
			}
			totals <- len(fired)
		}()
	}
	wg.Wait()
	close(totals)

	sum := 0
	for n := range totals {
		sum += n
	}
	if sum != 1 {
		t.Fatalf("total fires = %d, want exactly 1", sum)
	}
	if len(notifier.sends) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.sends))
	}
}
