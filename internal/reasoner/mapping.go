package reasoner

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
	"github.com/xkilldash9x/autopilot/internal/llmclient"
)

// mapAction translates a service action into the device vocabulary. A nil
// action means the step is a plain observation; the returned rationale says
// why.
func (r *Reasoner) mapAction(a llmclient.ComputerAction) (*schemas.Action, string) {
	at := schemas.Coordinates(a.X, a.Y)

	switch a.Kind {
	case llmclient.ActionClick:
		act := schemas.Click(at)
		return &act, ""

	case llmclient.ActionDoubleClick:
		act := schemas.Click(at)
		if r.cfg.ExtendedActions {
			act.ClickCount = 2
		}
		return &act, ""

	case llmclient.ActionMove:
		act := schemas.Hover(at)
		return &act, ""

	case llmclient.ActionScroll:
		act := schemas.Scroll(a.ScrollX, a.ScrollY)
		return &act, ""

	case llmclient.ActionType:
		act := schemas.TypeText(schemas.Wildcard(), a.Text)
		return &act, ""

	case llmclient.ActionKeypress:
		if len(a.Keys) == 0 {
			return nil, "keypress without keys"
		}
		act := schemas.Key(strings.Join(a.Keys, "+"))
		return &act, ""

	case llmclient.ActionDrag:
		if r.cfg.ExtendedActions && len(a.Path) >= 2 {
			first, last := a.Path[0], a.Path[len(a.Path)-1]
			act := schemas.Drag(schemas.Coordinates(first.X, first.Y), schemas.Coordinates(last.X, last.Y))
			return &act, ""
		}
		return nil, "unsupported service action: drag"

	case llmclient.ActionWait:
		return nil, fmt.Sprintf("service asked to wait %dms", a.WaitMs)

	case llmclient.ActionScreenshot:
		return nil, "service asked for a screenshot"

	default:
		r.logger.Warn("Unknown service action, treating step as an observation.", zap.String("action", a.Raw))
		return nil, "unknown service action: " + a.Raw
	}
}
