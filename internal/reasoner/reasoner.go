// File: internal/reasoner/reasoner.go
package reasoner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
	"github.com/xkilldash9x/autopilot/internal/agent"
	"github.com/xkilldash9x/autopilot/internal/config"
	"github.com/xkilldash9x/autopilot/internal/llmclient"
)

// State is the externally visible phase of a reasoning session.
type State string

const (
	StateIdle                State = "idle"
	StateAwaitingObservation State = "awaiting_observation"
	StateTerminal            State = "terminal"
)

// DoneMessage is recorded when the service ends the session with an explicit
// done signal.
const DoneMessage = "done"

// Config controls how the session talks to the service.
type Config struct {
	Instructions string
	// StopOnMessage makes any plain message from the service terminal.
	StopOnMessage bool
	// AutoConfirmText is sent once, with the first turn of a thread.
	AutoConfirmText     string
	ExtendedActions     bool
	KeepThreadOnMessage bool
}

// ConfigFrom extracts the session settings from the reasoner configuration.
func ConfigFrom(cfg config.ReasonerConfig) Config {
	return Config{
		Instructions:        cfg.Instructions,
		StopOnMessage:       cfg.StopOnMessage,
		AutoConfirmText:     cfg.AutoConfirmText,
		ExtendedActions:     cfg.ExtendedActions,
		KeepThreadOnMessage: cfg.KeepThreadOnMessage,
	}
}

// session is copied, advanced and swapped back in only when a service call
// succeeds. awaiting and pendingCallID always change together.
type session struct {
	previousID    string
	pendingCallID string
	pendingChecks []llmclient.SafetyCheck
	awaiting      bool
	terminal      string
	hasTerminal   bool
}

// Reasoner is a stateful agent.Reasoner backed by a remote computer-use
// service. One instance serves one run at a time.
type Reasoner struct {
	svc    llmclient.Service
	cfg    Config
	logger *zap.Logger

	mu sync.Mutex
	s  session
}

var _ agent.Reasoner = (*Reasoner)(nil)

// New creates a Reasoner with an empty session.
func New(svc llmclient.Service, cfg Config, logger *zap.Logger) *Reasoner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reasoner{
		svc:    svc,
		cfg:    cfg,
		logger: logger.Named("reasoner"),
	}
}

// State reports the current session phase.
func (r *Reasoner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.s.awaiting:
		return StateAwaitingObservation
	case r.s.hasTerminal:
		return StateTerminal
	default:
		return StateIdle
	}
}

// TerminalMessage returns the recorded terminal message, if any.
func (r *Reasoner) TerminalMessage() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.terminal, r.s.hasTerminal
}

// Reset drops the session so the instance can serve a new run.
func (r *Reasoner) Reset() {
	r.mu.Lock()
	r.s = session{}
	r.mu.Unlock()
}

// Decide implements agent.Reasoner. While a computer call is pending the
// snapshot is sent back as its observation; otherwise a new turn is composed
// from the goal.
func (r *Reasoner) Decide(ctx context.Context, goal schemas.Goal, snapshot schemas.Snapshot, lastErr error) (schemas.Thought, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		out  llmclient.Output
		err  error
		kind string
	)

	// 1. Talk to the service without touching the session.
	if r.s.awaiting {
		kind = "observation"
		if !snapshot.HasImage() {
			return schemas.Thought{}, agent.NewReasoningError(nil, "missing snapshot image for call %s", r.s.pendingCallID)
		}
		out, err = r.svc.SendObservation(ctx, llmclient.ObservationReply{
			CallID:                   r.s.pendingCallID,
			ImageBase64:              snapshot.ImageBase64,
			AcknowledgedSafetyChecks: r.s.pendingChecks,
		}, r.s.previousID)
	} else {
		kind = "turn"
		in := llmclient.TurnInput{
			Instructions: composeInstructions(r.cfg.Instructions, goal, lastErr),
			CurrentURL:   snapshot.URL,
		}
		if r.s.previousID == "" {
			in.Extra = r.cfg.AutoConfirmText
		}
		out, err = r.svc.Turn(ctx, in, r.s.previousID)
	}
	if err != nil {
		r.logger.Warn("Reasoning service call failed.", zap.String("kind", kind), zap.Error(err))
		return schemas.Thought{}, agent.NewReasoningError(err, "%s failed", kind)
	}

	// 2. Classify the reply into the next session.
	next, thought, err := r.advance(r.s, out)
	if err != nil {
		return schemas.Thought{}, err
	}
	r.s = next

	r.logger.Debug("Reasoning session advanced.",
		zap.String("kind", kind),
		zap.String("output", string(out.Kind)),
		zap.Bool("awaiting_observation", next.awaiting),
		zap.Bool("terminal", next.hasTerminal))
	return thought, nil
}

// IsGoalMet implements agent.Reasoner. It only inspects the session.
func (r *Reasoner) IsGoalMet(context.Context, schemas.Goal, schemas.Snapshot) (bool, error) {
	if !r.cfg.StopOnMessage {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.hasTerminal, nil
}

func (r *Reasoner) advance(s session, out llmclient.Output) (session, schemas.Thought, error) {
	switch out.Kind {
	case llmclient.OutputMessage:
		s.pendingCallID, s.pendingChecks, s.awaiting = "", nil, false
		if r.cfg.KeepThreadOnMessage {
			s.previousID = out.ResponseID
		} else {
			s.previousID = ""
		}
		if r.cfg.StopOnMessage {
			s.terminal, s.hasTerminal = out.Text, true
		}
		return s, schemas.Thought{Plan: out.Text}, nil

	case llmclient.OutputComputerCall:
		if out.Call == nil {
			return s, schemas.Thought{}, agent.NewReasoningError(nil, "computer call without payload")
		}
		s.previousID = out.ResponseID
		if out.Call.RequiresObservation && out.Call.CallID != "" {
			s.pendingCallID, s.pendingChecks, s.awaiting = out.Call.CallID, out.Call.SafetyChecks, true
		} else {
			s.pendingCallID, s.pendingChecks, s.awaiting = "", nil, false
		}
		action, rationale := r.mapAction(out.Call.Action)
		return s, schemas.Thought{Action: action, Rationale: rationale}, nil

	case llmclient.OutputDone:
		s.previousID = out.ResponseID
		s.pendingCallID, s.pendingChecks, s.awaiting = "", nil, false
		s.terminal, s.hasTerminal = DoneMessage, true
		return s, schemas.Thought{Plan: DoneMessage}, nil

	default:
		return s, schemas.Thought{}, agent.NewReasoningError(nil, "unexpected output kind %q", out.Kind)
	}
}

func composeInstructions(base string, goal schemas.Goal, lastErr error) string {
	lines := []string{"Goal: " + goal.Task}
	if len(goal.Constraints) > 0 {
		lines = append(lines, "Constraints:")
		for _, c := range goal.Constraints {
			lines = append(lines, "- "+c)
		}
	}
	if len(goal.SuccessCriteria) > 0 {
		lines = append(lines, "Success criteria:")
		for _, c := range goal.SuccessCriteria {
			lines = append(lines, "- "+c)
		}
	}
	if lastErr != nil {
		lines = append(lines, fmt.Sprintf("Previous step failed: %v", lastErr))
	}

	body := strings.Join(lines, "\n")
	if base = strings.TrimSpace(base); base != "" {
		return base + "\n\n" + body
	}
	return body
}
