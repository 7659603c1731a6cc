package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

const (
	DefaultMaxSteps    = 25
	DefaultStepTimeout = 20 * time.Second
)

// Config bounds a run.
type Config struct {
	MaxSteps    int
	StepTimeout time.Duration
	// Scopes are the capabilities granted to every action of the run.
	Scopes []schemas.Scope
}

// Option customizes an Agent.
type Option func(*Agent)

// WithSnapshotStore archives every observation the run produces.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(a *Agent) { a.snapshots = s }
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) { a.logger = logger.Named("agent") }
}

// WithRecorder reports step and run outcomes to a metrics sink.
func WithRecorder(r Recorder) Option {
	return func(a *Agent) { a.recorder = r }
}

// WithIDGenerator replaces the run id source.
func WithIDGenerator(fn func() string) Option {
	return func(a *Agent) { a.newID = fn }
}

// WithClock replaces the time source used for budgets and timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// Agent is the run controller. It owns no per-run state, so a single Agent can
// drive consecutive runs; concurrent runs need collaborators that tolerate it
// (the Reasoner in particular is usually per-run).
type Agent struct {
	computer  Computer
	reasoner  Reasoner
	memory    MemoryStore
	policy    PolicyEngine
	snapshots SnapshotStore
	recorder  Recorder
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// New assembles a run controller. A nil memory store or policy falls back to
// NullMemoryStore and AllowAllPolicy.
func New(computer Computer, reasoner Reasoner, memory MemoryStore, policy PolicyEngine, cfg Config, opts ...Option) *Agent {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	if memory == nil {
		memory = NullMemoryStore{}
	}
	if policy == nil {
		policy = AllowAllPolicy{}
	}

	a := &Agent{
		computer: computer,
		reasoner: reasoner,
		memory:   memory,
		policy:   policy,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// run is the mutable state of a single execution.
type run struct {
	id          string
	goal        schemas.Goal
	start       time.Time
	deadline    time.Time
	hasDeadline bool
	steps       []schemas.StepLog
	last        schemas.Snapshot
	lastErr     error
	logger      *zap.Logger
}

// Run executes a goal consisting only of task.
func (a *Agent) Run(ctx context.Context, task, startURL string) (*schemas.RunReport, error) {
	return a.RunGoal(ctx, schemas.NewGoal(task), startURL)
}

// RunGoal drives the device toward goal until the reasoner reports success or
// a budget is exhausted. Step-level failures are recorded in the report; only
// lifecycle failures (run start, initial observation, step log, run end) are
// returned as errors.
func (a *Agent) RunGoal(ctx context.Context, goal schemas.Goal, startURL string) (*schemas.RunReport, error) {
	r := &run{
		id:    a.newID(),
		goal:  goal,
		start: a.now(),
		steps: make([]schemas.StepLog, 0, a.cfg.MaxSteps),
	}
	r.logger = a.logger.With(zap.String("run_id", r.id))
	r.logger.Info("Run starting.",
		zap.String("task", goal.Task),
		zap.String("start_url", startURL),
		zap.Int("max_steps", a.cfg.MaxSteps))

	// 1. Register the run.
	if err := a.memory.OnRunStart(ctx, r.id, goal); err != nil {
		return nil, asCode(ErrCodePersistence, err)
	}

	// 2. Initial observation.
	snap, err := a.initialSnapshot(ctx, startURL)
	if err != nil {
		return nil, asCode(ErrCodeDevice, err)
	}
	r.last = a.stamp(r, snap)
	a.archive(ctx, r, InitialStep)

	// 3. Wall-clock budget.
	if goal.TimeoutMs != nil {
		r.deadline = r.start.Add(time.Duration(*goal.TimeoutMs) * time.Millisecond)
		r.hasDeadline = true
	}

	// 4. Step loop.
	for i := 0; i < a.cfg.MaxSteps; i++ {
		if r.hasDeadline && !a.now().Before(r.deadline) {
			return a.finish(ctx, r, schemas.StatusTimeout, "Run budget exceeded")
		}
		if ctx.Err() != nil {
			return a.finish(ctx, r, schemas.StatusError, "Run cancelled")
		}

		done, err := a.step(ctx, r, i)
		if err != nil {
			return nil, err
		}
		if done {
			return a.finish(ctx, r, schemas.StatusSuccess, "Goal met")
		}
	}

	return a.finish(ctx, r, schemas.StatusTimeout, "Step budget exceeded")
}

// step runs one iteration. It reports done when the goal has been met, and
// returns an error only for fatal persistence failures.
func (a *Agent) step(ctx context.Context, r *run, i int) (bool, error) {
	met, err := a.reasoner.IsGoalMet(ctx, r.goal, r.last)
	if err != nil {
		return false, a.fail(ctx, r, a.newEntry(r, i, schemas.Thought{}), asCode(ErrCodeReasoning, err))
	}
	if met {
		return true, nil
	}

	thought, err := a.reasoner.Decide(ctx, r.goal, r.last, r.lastErr)
	if err != nil {
		return false, a.fail(ctx, r, a.newEntry(r, i, schemas.Thought{}), asCode(ErrCodeReasoning, err))
	}
	entry := a.newEntry(r, i, thought)

	if thought.IsMessage() {
		entry.ResultHint = schemas.ResultMessage
		return false, a.commit(ctx, r, entry)
	}

	if thought.Action != nil {
		if err := thought.Action.Validate(); err != nil {
			return false, a.fail(ctx, r, entry, NewReasoningError(err, "invalid action %s", thought.Action.Type))
		}

		approval, err := a.policy.Approve(ctx, a.cfg.Scopes, *thought.Action)
		if err != nil {
			return false, a.fail(ctx, r, entry, asCode(ErrCodeUnknown, err))
		}
		entry.Approval = &approval
		if !approval.Granted {
			scope := approval.Scope
			if scope == "" {
				scope = schemas.ScopeNavigate
			}
			denied := NewDeniedError(scope)
			r.lastErr = denied
			entry.ResultHint = schemas.ResultDenied
			entry.Error = denied.Error()
			return false, a.commit(ctx, r, entry)
		}
	}

	result, err := a.execute(ctx, thought.Action)
	if err != nil {
		return false, a.fail(ctx, r, entry, err)
	}

	r.last = a.stamp(r, result.Snapshot)
	a.archive(ctx, r, i)
	r.lastErr = nil
	entry.SnapshotID = r.last.ID
	if result.Changed {
		entry.ResultHint = schemas.ResultChanged
	} else {
		entry.ResultHint = schemas.ResultUnchanged
	}
	return false, a.commit(ctx, r, entry)
}

func (a *Agent) initialSnapshot(ctx context.Context, startURL string) (schemas.Snapshot, error) {
	if startURL != "" {
		return a.computer.Open(ctx, startURL)
	}
	return a.computer.Observe(ctx)
}

// execute performs the approved action, or a plain observation when the
// thought carried neither an action nor a message.
func (a *Agent) execute(ctx context.Context, action *schemas.Action) (schemas.ActionResult, error) {
	stepCtx, cancel := context.WithTimeout(ctx, a.cfg.StepTimeout)
	defer cancel()

	var (
		result schemas.ActionResult
		err    error
	)
	if action == nil {
		var snap schemas.Snapshot
		snap, err = a.computer.Observe(stepCtx)
		result = schemas.ActionResult{Snapshot: snap, Message: "observe"}
	} else {
		result, err = a.computer.Execute(stepCtx, *action, a.cfg.StepTimeout)
	}
	if err == nil {
		return result, nil
	}

	if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return result, &Error{Code: ErrCodeTimeout, Message: "step exceeded " + a.cfg.StepTimeout.String(), Err: err}
	}
	return result, asCode(ErrCodeDevice, err)
}

func (a *Agent) newEntry(r *run, i int, thought schemas.Thought) schemas.StepLog {
	return schemas.StepLog{
		Step:        i,
		Plan:        thought.Plan,
		Action:      thought.Action,
		SnapshotID:  r.last.ID,
		TimestampMs: a.elapsedMs(r),
	}
}

// fail records entry as an error step and remembers err for the next decision.
func (a *Agent) fail(ctx context.Context, r *run, entry schemas.StepLog, err error) error {
	r.lastErr = err
	entry.ResultHint = schemas.ResultError
	entry.Error = err.Error()
	return a.commit(ctx, r, entry)
}

func (a *Agent) commit(ctx context.Context, r *run, entry schemas.StepLog) error {
	r.steps = append(r.steps, entry)

	fields := []zap.Field{
		zap.Int("step", entry.Step),
		zap.String("result", string(entry.ResultHint)),
	}
	if entry.Action != nil {
		fields = append(fields, zap.Stringer("action", entry.Action))
	}
	if entry.Error != "" {
		r.logger.Warn("Step failed.", append(fields, zap.String("error", entry.Error))...)
	} else {
		r.logger.Info("Step completed.", fields...)
	}
	if a.recorder != nil {
		a.recorder.RecordStep(entry.ResultHint)
	}

	// A step taken before cancellation is still recorded.
	if err := a.memory.OnStep(context.WithoutCancel(ctx), r.id, entry); err != nil {
		return NewPersistenceError(err, "recording step %d", entry.Step)
	}
	return nil
}

// finish assembles the report and closes the run record. The record is
// written even if ctx has been cancelled.
func (a *Agent) finish(ctx context.Context, r *run, status schemas.RunStatus, msg string) (*schemas.RunReport, error) {
	elapsed := a.now().Sub(r.start)
	last := r.last
	report := &schemas.RunReport{
		RunID:  r.id,
		Goal:   r.goal,
		Status: status,
		Metrics: schemas.RunMetrics{
			Steps:     len(r.steps),
			ElapsedMs: elapsed.Milliseconds(),
			Success:   status == schemas.StatusSuccess,
		},
		Steps:        r.steps,
		LastSnapshot: &last,
		Message:      msg,
	}
	if status != schemas.StatusSuccess {
		if r.lastErr != nil {
			report.Error = r.lastErr.Error()
		} else {
			report.Error = msg
		}
	}

	if err := a.memory.OnRunEnd(context.WithoutCancel(ctx), r.id, *report); err != nil {
		return nil, asCode(ErrCodePersistence, err)
	}
	if a.recorder != nil {
		a.recorder.RecordRun(status, report.Metrics.Steps, elapsed)
	}

	r.logger.Info("Run finished.",
		zap.String("status", string(status)),
		zap.String("message", msg),
		zap.Int("steps", report.Metrics.Steps),
		zap.Duration("elapsed", elapsed))
	return report, nil
}

func (a *Agent) stamp(r *run, snap schemas.Snapshot) schemas.Snapshot {
	snap.CapturedAtMs = a.elapsedMs(r)
	return snap
}

// archive saves the latest snapshot. Failures are logged and otherwise ignored.
func (a *Agent) archive(ctx context.Context, r *run, step int) {
	if a.snapshots == nil {
		return
	}
	if err := a.snapshots.Save(context.WithoutCancel(ctx), r.id, step, r.last); err != nil {
		r.logger.Warn("Failed to archive snapshot.", zap.Int("step", step), zap.Error(err))
	}
}

func (a *Agent) elapsedMs(r *run) int64 {
	return a.now().Sub(r.start).Milliseconds()
}
