package llmclient

import (
	"errors"
	"fmt"

	json "github.com/json-iterator/go"
)

// defaultWaitMs is used when a wait action does not say how long.
const defaultWaitMs = 300

// ErrMissingResponseID is returned for responses that cannot continue a thread.
var ErrMissingResponseID = errors.New("response has no id")

// -- Responses API wire structures (internal to this package) --

type wireResponse struct {
	ID     string     `json:"id"`
	Status string     `json:"status,omitempty"`
	Output []wireItem `json:"output"`
	Error  *wireError `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wireItem struct {
	Type                string        `json:"type"`
	CallID              string        `json:"call_id,omitempty"`
	Action              *wireAction   `json:"action,omitempty"`
	RequiresScreenshot  *bool         `json:"requires_screenshot,omitempty"`
	PendingSafetyChecks []SafetyCheck `json:"pending_safety_checks,omitempty"`
	Content             []wireContent `json:"content,omitempty"`
}

type wireContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireAction struct {
	Type    string     `json:"type"`
	X       *float64   `json:"x,omitempty"`
	Y       *float64   `json:"y,omitempty"`
	Button  string     `json:"button,omitempty"`
	ScrollX *float64   `json:"scroll_x,omitempty"`
	ScrollY *float64   `json:"scroll_y,omitempty"`
	DX      *float64   `json:"dx,omitempty"`
	DY      *float64   `json:"dy,omitempty"`
	Text    string     `json:"text,omitempty"`
	Keys    []string   `json:"keys,omitempty"`
	Key     string     `json:"key,omitempty"`
	Path    []wirePath `json:"path,omitempty"`
	Points  []wirePath `json:"points,omitempty"`
	Ms      *float64   `json:"ms,omitempty"`
}

type wirePath struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DecodeResponse classifies a raw Responses API body. A computer call anywhere
// in the output wins; an explicit done item ends the scan; otherwise the last
// message text is returned, and an empty output counts as done.
func DecodeResponse(body []byte) (Output, error) {
	var res wireResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return Output{}, fmt.Errorf("failed to decode response body: %w", err)
	}
	if res.Error != nil && res.Error.Message != "" {
		return Output{}, fmt.Errorf("service reported error %s: %s", res.Error.Code, res.Error.Message)
	}
	if res.ID == "" {
		return Output{}, ErrMissingResponseID
	}

	var message *string
	for _, item := range res.Output {
		switch item.Type {
		case "computer_call":
			return Output{Kind: OutputComputerCall, ResponseID: res.ID, Call: decodeCall(item)}, nil
		case "message":
			text := ""
			if len(item.Content) > 0 {
				text = item.Content[0].Text
			}
			message = &text
		case "done":
			return Output{Kind: OutputDone, ResponseID: res.ID}, nil
		}
	}

	if message != nil {
		return Output{Kind: OutputMessage, ResponseID: res.ID, Text: *message}, nil
	}
	return Output{Kind: OutputDone, ResponseID: res.ID}, nil
}

func decodeCall(item wireItem) *ComputerCall {
	call := &ComputerCall{
		CallID:              item.CallID,
		RequiresObservation: true,
		SafetyChecks:        item.PendingSafetyChecks,
	}
	if item.RequiresScreenshot != nil {
		call.RequiresObservation = *item.RequiresScreenshot
	}
	if item.Action == nil {
		call.Action = ComputerAction{Kind: ActionScreenshot, Raw: string(ActionScreenshot)}
		return call
	}
	call.Action = decodeAction(*item.Action)
	return call
}

func decodeAction(w wireAction) ComputerAction {
	a := ComputerAction{Raw: w.Type, X: intOf(w.X, 0), Y: intOf(w.Y, 0)}

	switch w.Type {
	case "click":
		a.Kind = ActionClick
		a.Button = w.Button
		if a.Button == "" {
			a.Button = "left"
		}
	case "double_click":
		a.Kind = ActionDoubleClick
	case "move":
		a.Kind = ActionMove
	case "scroll":
		a.Kind = ActionScroll
		a.ScrollX = intOf(w.ScrollX, intOf(w.DX, 0))
		a.ScrollY = intOf(w.ScrollY, intOf(w.DY, 0))
	case "type":
		a.Kind = ActionType
		a.Text = w.Text
	case "keypress":
		a.Kind = ActionKeypress
		a.Keys = w.Keys
		if len(a.Keys) == 0 && w.Key != "" {
			a.Keys = []string{w.Key}
		}
	case "drag", "drag_path":
		a.Kind = ActionDrag
		path := w.Path
		if len(path) == 0 {
			path = w.Points
		}
		for _, p := range path {
			a.Path = append(a.Path, Point{X: int(p.X), Y: int(p.Y)})
		}
	case "wait", "wait_ms":
		a.Kind = ActionWait
		a.WaitMs = intOf(w.Ms, defaultWaitMs)
	case "screenshot":
		a.Kind = ActionScreenshot
	default:
		a.Kind = ActionUnknown
	}
	return a
}

func intOf(v *float64, fallback int) int {
	if v == nil {
		return fallback
	}
	return int(*v)
}
