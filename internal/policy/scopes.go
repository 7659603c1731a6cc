package policy

import "github.com/xkilldash9x/autopilot/api/schemas"

// RequiredScopes lists the scopes an action needs before it may run. Pointer
// and keyboard actions need none.
func RequiredScopes(action schemas.Action) []schemas.Scope {
	switch action.Type {
	case schemas.ActionNavigate:
		return []schemas.Scope{schemas.ScopeNavigate}
	case schemas.ActionClipboardRead:
		return []schemas.Scope{schemas.ScopeClipboardRead}
	case schemas.ActionClipboardWrite:
		return []schemas.Scope{schemas.ScopeClipboardWrite}
	case schemas.ActionFileUpload:
		return []schemas.Scope{schemas.ScopeFileAccess}
	case schemas.ActionSubmit:
		return []schemas.Scope{schemas.ScopeNetwork}
	default:
		return nil
	}
}
