// File: internal/browser/keys.go
package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
)

// KeyCombo is a parsed key chord such as "ctrl+shift+Tab".
type KeyCombo struct {
	Modifiers []input.Modifier
	// Key is the sequence handed to chromedp.KeyEvent.
	Key string
}

var modifierNames = map[string]input.Modifier{
	"ctrl":    input.ModifierCtrl,
	"control": input.ModifierCtrl,
	"alt":     input.ModifierAlt,
	"option":  input.ModifierAlt,
	"shift":   input.ModifierShift,
	"meta":    input.ModifierMeta,
	"cmd":     input.ModifierMeta,
	"command": input.ModifierMeta,
	"super":   input.ModifierMeta,
}

var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"return":     kb.Enter,
	"tab":        kb.Tab,
	"esc":        kb.Escape,
	"escape":     kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"del":        kb.Delete,
	"arrowup":    kb.ArrowUp,
	"up":         kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"down":       kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"left":       kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"right":      kb.ArrowRight,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"space":      " ",
}

// ParseKeyCombo splits combo on "+" into modifiers and a single key. Names
// are case-insensitive; a lone "+" is the plus key.
func ParseKeyCombo(combo string) (KeyCombo, error) {
	combo = strings.TrimSpace(combo)
	if combo == "" {
		return KeyCombo{}, fmt.Errorf("empty key combo")
	}
	if combo == "+" {
		return KeyCombo{Key: "+"}, nil
	}

	parts := strings.Split(combo, "+")
	// "ctrl++" names the plus key.
	if strings.HasSuffix(combo, "++") {
		parts = append(parts[:len(parts)-2], "+")
	}

	var kc KeyCombo
	seen := map[input.Modifier]bool{}
	for i, raw := range parts {
		part := strings.TrimSpace(raw)
		if part == "" {
			return KeyCombo{}, fmt.Errorf("malformed key combo %q", combo)
		}
		last := i == len(parts)-1

		if mod, ok := modifierNames[strings.ToLower(part)]; ok && !last {
			if !seen[mod] {
				kc.Modifiers = append(kc.Modifiers, mod)
				seen[mod] = true
			}
			continue
		}
		if !last {
			return KeyCombo{}, fmt.Errorf("unknown modifier %q in key combo %q", part, combo)
		}

		key, err := keyFor(part, len(kc.Modifiers) > 0)
		if err != nil {
			return KeyCombo{}, fmt.Errorf("key combo %q: %w", combo, err)
		}
		kc.Key = key
	}
	return kc, nil
}

func keyFor(name string, chorded bool) (string, error) {
	if k, ok := namedKeys[strings.ToLower(name)]; ok {
		return k, nil
	}
	if len([]rune(name)) == 1 {
		// "CTRL+A" means the A key, not a shifted capital.
		if chorded {
			return strings.ToLower(name), nil
		}
		return name, nil
	}
	return "", fmt.Errorf("unknown key %q", name)
}
