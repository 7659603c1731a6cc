// internal/llmclient/service.go
package llmclient

import "context"

// Service is the remote computer-use reasoning service. Each call opens or
// continues a thread identified by the previous response id ("" for none).
type Service interface {
	// Turn sends a new user turn.
	Turn(ctx context.Context, in TurnInput, previousID string) (Output, error)
	// SendObservation answers a pending computer call with a screenshot.
	SendObservation(ctx context.Context, reply ObservationReply, previousID string) (Output, error)
}

// TurnInput is the user-side content of a new turn.
type TurnInput struct {
	Instructions string
	CurrentURL   string
	// Extra is appended as an additional text part when non-empty.
	Extra string
}

// ObservationReply answers a computer call. It never carries instructions.
type ObservationReply struct {
	CallID                   string
	ImageBase64              string
	AcknowledgedSafetyChecks []SafetyCheck
}

// SafetyCheck is a confirmation the service asks the caller to acknowledge.
type SafetyCheck struct {
	ID      string `json:"id"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// OutputKind discriminates Output.
type OutputKind string

const (
	OutputMessage      OutputKind = "message"
	OutputComputerCall OutputKind = "computer_call"
	OutputDone         OutputKind = "done"
)

// Output is one classified service response. Exactly one of Text (message)
// or Call (computer_call) is meaningful, depending on Kind.
type Output struct {
	Kind       OutputKind
	ResponseID string
	Text       string
	Call       *ComputerCall
}

// ComputerCall is a request to act on the device.
type ComputerCall struct {
	CallID string
	Action ComputerAction
	// RequiresObservation means the service expects a screenshot reply
	// before it will continue.
	RequiresObservation bool
	SafetyChecks        []SafetyCheck
}

// ActionKind enumerates the service-side action vocabulary. ActionUnknown
// carries any kind this client does not recognize.
type ActionKind string

const (
	ActionScreenshot  ActionKind = "screenshot"
	ActionClick       ActionKind = "click"
	ActionDoubleClick ActionKind = "double_click"
	ActionMove        ActionKind = "move"
	ActionScroll      ActionKind = "scroll"
	ActionType        ActionKind = "type"
	ActionKeypress    ActionKind = "keypress"
	ActionDrag        ActionKind = "drag"
	ActionWait        ActionKind = "wait"
	ActionUnknown     ActionKind = "unknown"
)

// Point is a viewport coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ComputerAction is the decoded action of a computer call.
type ComputerAction struct {
	Kind   ActionKind
	X, Y   int
	Button string
	// ScrollX and ScrollY are the scroll deltas.
	ScrollX, ScrollY int
	Text             string
	Keys             []string
	Path             []Point
	WaitMs           int
	// Raw is the original kind name, kept for unknown actions.
	Raw string
}
