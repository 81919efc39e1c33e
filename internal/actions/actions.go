package actions

import (
	"context"
	"sync"
)

// Result is what an executed action reports back.
type Result struct {
	ActionID string         `json:"action_id"`
	Output   map[string]any `json:"output,omitempty"`
}

// Executor carries out a workflow action identified by id. External
// integrations (CRM updates, outreach) implement this; the engine
// itself only sequences calls.
type Executor interface {
	Name() string
	Execute(ctx context.Context, actionID string, params map[string]any) (*Result, error)
}

// Noop is the default executor: it acknowledges every action without
// side effects.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Execute(_ context.Context, actionID string, _ map[string]any) (*Result, error) {
	return &Result{ActionID: actionID}, nil
}

// Call records a single Execute invocation on a Mock.
type Call struct {
	ActionID string
	Params   map[string]any
}

// Mock records calls for tests and returns a canned result or error.
type Mock struct {
	mu     sync.Mutex
	calls  []Call
	Result *Result
	Err    error
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Execute(_ context.Context, actionID string, params map[string]any) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{ActionID: actionID, Params: params})
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &Result{ActionID: actionID}, nil
}

// Calls returns a copy of the recorded invocations.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
