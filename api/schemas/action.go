package schemas

import (
	"fmt"
	"strings"
)

// ActionType is the discriminator of the Action union.
type ActionType string

const (
	ActionClick          ActionType = "click"
	ActionTypeText       ActionType = "type"
	ActionKey            ActionType = "key"
	ActionHover          ActionType = "hover"
	ActionScroll         ActionType = "scroll"
	ActionDrag           ActionType = "drag"
	ActionNavigate       ActionType = "navigate"
	ActionSubmit         ActionType = "submit"
	ActionFileUpload     ActionType = "file_upload"
	ActionClipboardRead  ActionType = "clipboard_read"
	ActionClipboardWrite ActionType = "clipboard_write"
	ActionWait           ActionType = "wait"
)

// Action is one device-level instruction. Which fields are meaningful depends
// on Type; Validate enforces the per-variant requirements.
type Action struct {
	Type ActionType `json:"type"`

	// Target is the element acted upon (click, type, hover, submit,
	// file_upload), the scroll container, or the drag origin.
	Target *Locator `json:"target,omitempty"`
	// To is the drag destination.
	To *Locator `json:"to,omitempty"`

	Text       string `json:"text,omitempty"`
	Combo      string `json:"combo,omitempty"`
	URL        string `json:"url,omitempty"`
	Path       string `json:"path,omitempty"`
	DX         int    `json:"dx,omitempty"`
	DY         int    `json:"dy,omitempty"`
	ClickCount int    `json:"click_count,omitempty"`
	DurationMs int    `json:"duration_ms,omitempty"`
}

func Click(target Locator) Action {
	return Action{Type: ActionClick, Target: &target, ClickCount: 1}
}

func TypeText(into Locator, text string) Action {
	return Action{Type: ActionTypeText, Target: &into, Text: text}
}

func Key(combo string) Action { return Action{Type: ActionKey, Combo: combo} }

func Hover(target Locator) Action { return Action{Type: ActionHover, Target: &target} }

func Scroll(dx, dy int) Action { return Action{Type: ActionScroll, DX: dx, DY: dy} }

func Drag(from, to Locator) Action {
	return Action{Type: ActionDrag, Target: &from, To: &to}
}

func Navigate(url string) Action { return Action{Type: ActionNavigate, URL: url} }

func Submit(target Locator) Action { return Action{Type: ActionSubmit, Target: &target} }

func FileUpload(target Locator, path string) Action {
	return Action{Type: ActionFileUpload, Target: &target, Path: path}
}

func ClipboardRead() Action { return Action{Type: ActionClipboardRead} }

func ClipboardWrite(text string) Action { return Action{Type: ActionClipboardWrite, Text: text} }

func Wait(ms int) Action { return Action{Type: ActionWait, DurationMs: ms} }

// Validate checks the variant-specific fields of the action.
func (a Action) Validate() error {
	needTarget := func() error {
		if a.Target == nil {
			return fmt.Errorf("%s action requires a target", a.Type)
		}
		return a.Target.Validate()
	}

	switch a.Type {
	case ActionClick:
		if a.ClickCount < 0 {
			return fmt.Errorf("click count must not be negative")
		}
		return needTarget()
	case ActionHover, ActionSubmit, ActionTypeText:
		return needTarget()
	case ActionFileUpload:
		if err := needTarget(); err != nil {
			return err
		}
		if strings.TrimSpace(a.Path) == "" {
			return fmt.Errorf("file_upload action requires a path")
		}
		if a.Target.By != ByCSS && a.Target.By != ByXPath && a.Target.By != ByID {
			return fmt.Errorf("file_upload needs a structural locator, got %s", a.Target.By)
		}
	case ActionKey:
		if strings.TrimSpace(a.Combo) == "" {
			return fmt.Errorf("key action requires a combo")
		}
	case ActionScroll:
		if a.Target != nil {
			return a.Target.Validate()
		}
	case ActionDrag:
		if err := needTarget(); err != nil {
			return err
		}
		if a.To == nil {
			return fmt.Errorf("drag action requires a destination")
		}
		return a.To.Validate()
	case ActionNavigate:
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("navigate action requires a url")
		}
	case ActionClipboardRead, ActionClipboardWrite:
	case ActionWait:
		if a.DurationMs < 0 {
			return fmt.Errorf("wait duration must not be negative")
		}
	case "":
		return fmt.Errorf("action type is required")
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// String is a short description used in logs and step records.
func (a Action) String() string {
	switch a.Type {
	case ActionClick:
		if a.ClickCount > 1 {
			return fmt.Sprintf("click(%s x%d)", a.target(), a.ClickCount)
		}
		return fmt.Sprintf("click(%s)", a.target())
	case ActionTypeText:
		return fmt.Sprintf("type(%s, %d chars)", a.target(), len(a.Text))
	case ActionKey:
		return fmt.Sprintf("key(%s)", a.Combo)
	case ActionHover:
		return fmt.Sprintf("hover(%s)", a.target())
	case ActionScroll:
		if a.Target != nil {
			return fmt.Sprintf("scroll(%s, %d, %d)", a.target(), a.DX, a.DY)
		}
		return fmt.Sprintf("scroll(%d, %d)", a.DX, a.DY)
	case ActionDrag:
		to := "?"
		if a.To != nil {
			to = a.To.String()
		}
		return fmt.Sprintf("drag(%s -> %s)", a.target(), to)
	case ActionNavigate:
		return fmt.Sprintf("navigate(%s)", a.URL)
	case ActionSubmit:
		return fmt.Sprintf("submit(%s)", a.target())
	case ActionFileUpload:
		return fmt.Sprintf("file_upload(%s, %s)", a.target(), a.Path)
	case ActionWait:
		return fmt.Sprintf("wait(%dms)", a.DurationMs)
	default:
		return string(a.Type)
	}
}

func (a Action) target() string {
	if a.Target == nil {
		return "?"
	}
	return a.Target.String()
}
