// File: internal/agent/interfaces.go
package agent

import (
	"context"
	"time"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

// InitialStep is the step index used when archiving the snapshot taken before
// the first iteration.
const InitialStep = -1

// Computer is the perception and execution device.
type Computer interface {
	// Open navigates to url and returns the resulting observation.
	Open(ctx context.Context, url string) (schemas.Snapshot, error)
	// Observe captures the current state without acting.
	Observe(ctx context.Context) (schemas.Snapshot, error)
	// Locate resolves a locator to an element description.
	Locate(ctx context.Context, locator schemas.Locator, timeout time.Duration) (schemas.ElementDescriptor, error)
	// Execute performs one action within timeout.
	Execute(ctx context.Context, action schemas.Action, timeout time.Duration) (schemas.ActionResult, error)
}

// Reasoner decides the next step from the latest observation.
type Reasoner interface {
	// Decide produces the next thought. lastErr is the error of the previous
	// step, or nil.
	Decide(ctx context.Context, goal schemas.Goal, snapshot schemas.Snapshot, lastErr error) (schemas.Thought, error)
	// IsGoalMet reports whether the goal has been reached. It must not mutate
	// reasoning state.
	IsGoalMet(ctx context.Context, goal schemas.Goal, snapshot schemas.Snapshot) (bool, error)
}

// PolicyEngine approves or denies actions against the granted scopes.
type PolicyEngine interface {
	Approve(ctx context.Context, granted []schemas.Scope, action schemas.Action) (schemas.Approval, error)
}

// MemoryStore persists the run lifecycle. Implementations must accept
// concurrent calls for different runs.
type MemoryStore interface {
	OnRunStart(ctx context.Context, runID string, goal schemas.Goal) error
	OnStep(ctx context.Context, runID string, step schemas.StepLog) error
	OnRunEnd(ctx context.Context, runID string, report schemas.RunReport) error
}

// SnapshotStore archives observations. step is InitialStep for the snapshot
// taken before the loop.
type SnapshotStore interface {
	Save(ctx context.Context, runID string, step int, snapshot schemas.Snapshot) error
}

// Recorder receives run and step outcomes for metrics.
type Recorder interface {
	RecordStep(result schemas.ResultHint)
	RecordRun(status schemas.RunStatus, steps int, elapsed time.Duration)
}
