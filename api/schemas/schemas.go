package schemas

import (
	"fmt"
	"strings"
)

// Goal is the immutable description of what a run must achieve.
type Goal struct {
	Task            string   `json:"task" yaml:"task"`
	Constraints     []string `json:"constraints,omitempty" yaml:"constraints"`
	SuccessCriteria []string `json:"success_criteria,omitempty" yaml:"success_criteria"`
	// TimeoutMs bounds the wall-clock duration of the run. Nil means unbounded.
	TimeoutMs *int64 `json:"timeout_ms,omitempty" yaml:"timeout_ms"`
}

// NewGoal builds a goal carrying only a task.
func NewGoal(task string) Goal { return Goal{Task: task} }

// WithTimeout returns a copy of the goal bounded to ms milliseconds.
func (g Goal) WithTimeout(ms int64) Goal {
	g.TimeoutMs = &ms
	return g
}

// Snapshot is one observation of the device.
type Snapshot struct {
	ID          string `json:"id"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	DOMSummary  string `json:"dom_summary,omitempty"`
	// CapturedAtMs is milliseconds since the start of the run.
	CapturedAtMs int64 `json:"captured_at_ms"`
}

// HasImage reports whether the snapshot carries an encoded image.
func (s Snapshot) HasImage() bool { return s.ImageBase64 != "" }

// Rect is an element's bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the rectangle rounded to whole pixels.
func (r Rect) Center() (int, int) {
	return int(r.X + r.Width/2), int(r.Y + r.Height/2)
}

// ElementDescriptor is the result of resolving a locator.
type ElementDescriptor struct {
	Locator     Locator `json:"locator"`
	Description string  `json:"description,omitempty"`
	Rect        *Rect   `json:"rect,omitempty"`
}

// ActionResult is what the device reports after executing an action.
type ActionResult struct {
	Snapshot Snapshot `json:"snapshot"`
	Changed  bool     `json:"changed"`
	Message  string   `json:"message,omitempty"`
}

// Thought is the reasoner's decision for one step.
type Thought struct {
	Plan      string  `json:"plan"`
	Action    *Action `json:"action,omitempty"`
	Rationale string  `json:"rationale,omitempty"`
}

// IsMessage reports whether the thought is a plain text reply with no action.
func (t Thought) IsMessage() bool {
	return t.Action == nil && strings.TrimSpace(t.Plan) != ""
}

// Scope is a capability that an action may require.
type Scope string

const (
	ScopeNavigate       Scope = "navigate"
	ScopeClipboardRead  Scope = "clipboard_read"
	ScopeClipboardWrite Scope = "clipboard_write"
	ScopeFileAccess     Scope = "file_access"
	ScopeNetwork        Scope = "network"
)

// AllScopes lists every known capability scope.
var AllScopes = []Scope{ScopeNavigate, ScopeClipboardRead, ScopeClipboardWrite, ScopeFileAccess, ScopeNetwork}

// ParseScope accepts the canonical names as well as dashed spellings.
func ParseScope(s string) (Scope, error) {
	norm := Scope(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, known := range AllScopes {
		if norm == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// ParseScopes parses a list of scope names, failing on the first unknown one.
func ParseScopes(in []string) ([]Scope, error) {
	out := make([]Scope, 0, len(in))
	for _, s := range in {
		scope, err := ParseScope(s)
		if err != nil {
			return nil, err
		}
		out = append(out, scope)
	}
	return out, nil
}

// Approval is the policy decision for one action.
type Approval struct {
	Granted bool   `json:"granted"`
	Scope   Scope  `json:"scope,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ResultHint classifies the outcome of a step.
type ResultHint string

const (
	ResultMessage   ResultHint = "message"
	ResultChanged   ResultHint = "changed"
	ResultUnchanged ResultHint = "unchanged"
	ResultDenied    ResultHint = "denied"
	ResultError     ResultHint = "error"
)

// StepLog is the durable record of one controller iteration.
type StepLog struct {
	Step        int        `json:"step"`
	Plan        string     `json:"plan"`
	Action      *Action    `json:"action,omitempty"`
	Approval    *Approval  `json:"approval,omitempty"`
	ResultHint  ResultHint `json:"result_hint"`
	SnapshotID  string     `json:"snapshot_id,omitempty"`
	Error       string     `json:"error,omitempty"`
	TimestampMs int64      `json:"timestamp_ms"`
}

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusTimeout RunStatus = "timeout"
	StatusError   RunStatus = "error"
)

// RunMetrics summarizes a run.
type RunMetrics struct {
	Steps     int   `json:"steps"`
	ElapsedMs int64 `json:"time_ms"`
	Success   bool  `json:"success"`
}

// RunReport is the final outcome of a run.
type RunReport struct {
	RunID        string     `json:"run_id"`
	Goal         Goal       `json:"goal"`
	Status       RunStatus  `json:"status"`
	Metrics      RunMetrics `json:"metrics"`
	Steps        []StepLog  `json:"steps"`
	LastSnapshot *Snapshot  `json:"last_snapshot,omitempty"`
	Message      string     `json:"message,omitempty"`
	Error        string     `json:"error,omitempty"`
}
