// File: internal/policy/engine.go
package policy

import (
	"context"
	"fmt"
	"os"

	json "github.com/json-iterator/go"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
	"github.com/xkilldash9x/autopilot/internal/agent"
	"github.com/xkilldash9x/autopilot/internal/config"
)

// DecisionQuery is the rule every policy module must define. It evaluates to
// an object {granted, scope, reason}.
const DecisionQuery = "data.autopilot.policy.decision"

// DefaultModule grants an action when every scope it requires was granted,
// and never lets navigation leave http(s) or about:blank.
const DefaultModule = `
package autopilot.policy

import rego.v1

missing contains s if {
	some s in input.required_scopes
	not s in input.granted_scopes
}

web_url(u) if startswith(lower(u), "http://")

web_url(u) if startswith(lower(u), "https://")

web_url(u) if lower(u) == "about:blank"

off_web if {
	input.action.type == "navigate"
	not web_url(input.action.url)
}

default decision := {"granted": true, "reason": "required scopes granted"}

decision := {
	"granted": false,
	"scope": "navigate",
	"reason": sprintf("navigation to %q is not allowed", [input.action.url]),
} if {
	off_web
} else := {
	"granted": false,
	"scope": sort(missing)[0],
	"reason": sprintf("scope %s not granted", [sort(missing)[0]]),
} if {
	count(missing) > 0
}
`

// RegoEngine is an agent.PolicyEngine evaluating a prepared OPA query.
type RegoEngine struct {
	query  rego.PreparedEvalQuery
	logger *zap.Logger
}

var _ agent.PolicyEngine = (*RegoEngine)(nil)

// NewRegoEngine compiles module. name is used in compile errors.
func NewRegoEngine(ctx context.Context, name, module string, logger *zap.Logger) (*RegoEngine, error) {
	query, err := rego.New(
		rego.Query(DecisionQuery),
		rego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy %s: %w", name, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegoEngine{query: query, logger: logger.Named("policy")}, nil
}

// New builds the engine selected by cfg.Mode.
func New(ctx context.Context, cfg config.PolicyConfig, logger *zap.Logger) (agent.PolicyEngine, error) {
	switch cfg.Mode {
	case config.PolicyModeAllowAll:
		return agent.AllowAllPolicy{}, nil
	case config.PolicyModeRego, "":
		if cfg.File == "" {
			return NewRegoEngine(ctx, "default.rego", DefaultModule, logger)
		}
		src, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file: %w", err)
		}
		return NewRegoEngine(ctx, cfg.File, string(src), logger)
	default:
		return nil, fmt.Errorf("unknown policy mode %q", cfg.Mode)
	}
}

type decision struct {
	Granted bool   `json:"granted"`
	Scope   string `json:"scope"`
	Reason  string `json:"reason"`
}

// Approve implements agent.PolicyEngine.
func (e *RegoEngine) Approve(ctx context.Context, granted []schemas.Scope, action schemas.Action) (schemas.Approval, error) {
	input, err := buildInput(granted, action)
	if err != nil {
		return schemas.Approval{}, err
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return schemas.Approval{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return schemas.Approval{}, fmt.Errorf("policy produced no decision for %s", action.Type)
	}

	// Round-trip through JSON to read the object regardless of its Go shape.
	raw, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return schemas.Approval{}, fmt.Errorf("failed to encode policy decision: %w", err)
	}
	var d decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return schemas.Approval{}, fmt.Errorf("policy decision is not an object: %w", err)
	}

	approval := schemas.Approval{Granted: d.Granted, Reason: d.Reason}
	switch {
	case d.Scope != "":
		scope, err := schemas.ParseScope(d.Scope)
		if err != nil {
			return schemas.Approval{}, fmt.Errorf("policy returned %w", err)
		}
		approval.Scope = scope
	case len(input.RequiredScopes) > 0:
		approval.Scope = schemas.Scope(input.RequiredScopes[0])
	}

	if !approval.Granted {
		e.logger.Debug("Action denied.",
			zap.String("action", action.String()),
			zap.String("scope", string(approval.Scope)),
			zap.String("reason", approval.Reason))
	}
	return approval, nil
}

type policyInput struct {
	Action         map[string]any `json:"action"`
	RequiredScopes []string       `json:"required_scopes"`
	GrantedScopes  []string       `json:"granted_scopes"`
}

func buildInput(granted []schemas.Scope, action schemas.Action) (policyInput, error) {
	in := policyInput{
		RequiredScopes: []string{},
		GrantedScopes:  []string{},
	}
	for _, s := range RequiredScopes(action) {
		in.RequiredScopes = append(in.RequiredScopes, string(s))
	}
	for _, s := range granted {
		in.GrantedScopes = append(in.GrantedScopes, string(s))
	}

	raw, err := json.Marshal(action)
	if err != nil {
		return in, fmt.Errorf("failed to encode action: %w", err)
	}
	if err := json.Unmarshal(raw, &in.Action); err != nil {
		return in, fmt.Errorf("failed to decode action: %w", err)
	}
	return in, nil
}
