package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

// NullMemoryStore discards everything.
type NullMemoryStore struct{}

func (NullMemoryStore) OnRunStart(context.Context, string, schemas.Goal) error { return nil }
func (NullMemoryStore) OnStep(context.Context, string, schemas.StepLog) error { return nil }
func (NullMemoryStore) OnRunEnd(context.Context, string, schemas.RunReport) error { return nil }

// AllowAllPolicy grants every action.
type AllowAllPolicy struct{}

func (AllowAllPolicy) Approve(context.Context, []schemas.Scope, schemas.Action) (schemas.Approval, error) {
	return schemas.Approval{Granted: true, Reason: "allow-all"}, nil
}

// NoopComputer accepts every action without touching a device. It remembers
// the last navigated URL so observations stay plausible.
type NoopComputer struct {
	mu  sync.Mutex
	url string
}

func (c *NoopComputer) Open(_ context.Context, url string) (schemas.Snapshot, error) {
	c.mu.Lock()
	c.url = url
	c.mu.Unlock()
	return c.snapshot(), nil
}

func (c *NoopComputer) Observe(context.Context) (schemas.Snapshot, error) {
	return c.snapshot(), nil
}

func (c *NoopComputer) Locate(_ context.Context, loc schemas.Locator, _ time.Duration) (schemas.ElementDescriptor, error) {
	return schemas.ElementDescriptor{Locator: loc, Description: "noop"}, nil
}

func (c *NoopComputer) Execute(_ context.Context, action schemas.Action, _ time.Duration) (schemas.ActionResult, error) {
	changed := false
	if action.Type == schemas.ActionNavigate {
		c.mu.Lock()
		changed = c.url != action.URL
		c.url = action.URL
		c.mu.Unlock()
	}
	return schemas.ActionResult{Snapshot: c.snapshot(), Changed: changed, Message: "noop"}, nil
}

func (c *NoopComputer) snapshot() schemas.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return schemas.Snapshot{ID: uuid.New().String(), URL: c.url}
}

// SimpleReasoner never acts. Its plan restates the task and it considers the
// goal met once the task mentions "stop".
type SimpleReasoner struct{}

func (SimpleReasoner) Decide(_ context.Context, goal schemas.Goal, _ schemas.Snapshot, _ error) (schemas.Thought, error) {
	return schemas.Thought{Plan: "Plan: " + goal.Task}, nil
}

func (SimpleReasoner) IsGoalMet(_ context.Context, goal schemas.Goal, _ schemas.Snapshot) (bool, error) {
	return strings.Contains(strings.ToLower(goal.Task), "stop"), nil
}

// NewWithDefaults builds an Agent with a null memory store and an allow-all policy.
func NewWithDefaults(computer Computer, reasoner Reasoner, cfg Config, opts ...Option) *Agent {
	return New(computer, reasoner, NullMemoryStore{}, AllowAllPolicy{}, cfg, opts...)
}
