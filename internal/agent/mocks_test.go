package agent

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

// mockComputer mocks the Computer interface.
type mockComputer struct {
	mock.Mock
}

func (m *mockComputer) Open(ctx context.Context, url string) (schemas.Snapshot, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(schemas.Snapshot), args.Error(1)
}

func (m *mockComputer) Observe(ctx context.Context) (schemas.Snapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.Snapshot), args.Error(1)
}

func (m *mockComputer) Locate(ctx context.Context, loc schemas.Locator, timeout time.Duration) (schemas.ElementDescriptor, error) {
	args := m.Called(ctx, loc, timeout)
	return args.Get(0).(schemas.ElementDescriptor), args.Error(1)
}

func (m *mockComputer) Execute(ctx context.Context, action schemas.Action, timeout time.Duration) (schemas.ActionResult, error) {
	args := m.Called(ctx, action, timeout)
	return args.Get(0).(schemas.ActionResult), args.Error(1)
}

// mockMemory mocks the MemoryStore interface.
type mockMemory struct {
	mock.Mock
}

func (m *mockMemory) OnRunStart(ctx context.Context, runID string, goal schemas.Goal) error {
	return m.Called(ctx, runID, goal).Error(0)
}

func (m *mockMemory) OnStep(ctx context.Context, runID string, step schemas.StepLog) error {
	return m.Called(ctx, runID, step).Error(0)
}

func (m *mockMemory) OnRunEnd(ctx context.Context, runID string, report schemas.RunReport) error {
	return m.Called(ctx, runID, report).Error(0)
}

// mockSnapshots mocks the SnapshotStore interface.
type mockSnapshots struct {
	mock.Mock
}

func (m *mockSnapshots) Save(ctx context.Context, runID string, step int, snap schemas.Snapshot) error {
	return m.Called(ctx, runID, step, snap).Error(0)
}

// scriptedReasoner replays decisions from functions and records what it was given.
type scriptedReasoner struct {
	mu       sync.Mutex
	decide   func(call int, lastErr error) (schemas.Thought, error)
	met      func(call int) (bool, error)
	lastErrs []error
	decides  int
	checks   int
}

func (r *scriptedReasoner) Decide(_ context.Context, _ schemas.Goal, _ schemas.Snapshot, lastErr error) (schemas.Thought, error) {
	r.mu.Lock()
	call := r.decides
	r.decides++
	r.lastErrs = append(r.lastErrs, lastErr)
	r.mu.Unlock()
	if r.decide == nil {
		return schemas.Thought{}, nil
	}
	return r.decide(call, lastErr)
}

func (r *scriptedReasoner) IsGoalMet(context.Context, schemas.Goal, schemas.Snapshot) (bool, error) {
	r.mu.Lock()
	call := r.checks
	r.checks++
	r.mu.Unlock()
	if r.met == nil {
		return false, nil
	}
	return r.met(call)
}

// recordingMemory keeps everything it is told in memory.
type recordingMemory struct {
	mu      sync.Mutex
	started []string
	steps   []schemas.StepLog
	reports []schemas.RunReport
}

func (m *recordingMemory) OnRunStart(_ context.Context, runID string, _ schemas.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, runID)
	return nil
}

func (m *recordingMemory) OnStep(_ context.Context, _ string, step schemas.StepLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step)
	return nil
}

func (m *recordingMemory) OnRunEnd(_ context.Context, _ string, report schemas.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	return nil
}

// contextMemory fails like a database driver once its context is done.
type contextMemory struct {
	recordingMemory
}

func (m *contextMemory) OnRunStart(ctx context.Context, runID string, goal schemas.Goal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.recordingMemory.OnRunStart(ctx, runID, goal)
}

func (m *contextMemory) OnStep(ctx context.Context, runID string, step schemas.StepLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.recordingMemory.OnStep(ctx, runID, step)
}

func (m *contextMemory) OnRunEnd(ctx context.Context, runID string, report schemas.RunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.recordingMemory.OnRunEnd(ctx, runID, report)
}

// denyPolicy refuses every action with a fixed scope.
type denyPolicy struct {
	scope schemas.Scope
}

func (p denyPolicy) Approve(context.Context, []schemas.Scope, schemas.Action) (schemas.Approval, error) {
	return schemas.Approval{Granted: false, Scope: p.scope, Reason: "denied by test"}, nil
}

// countingRecorder counts recorder callbacks.
type countingRecorder struct {
	mu    sync.Mutex
	steps map[schemas.ResultHint]int
	runs  map[schemas.RunStatus]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{steps: map[schemas.ResultHint]int{}, runs: map[schemas.RunStatus]int{}}
}

func (c *countingRecorder) RecordStep(result schemas.ResultHint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps[result]++
}

func (c *countingRecorder) RecordRun(status schemas.RunStatus, _ int, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[status]++
}
