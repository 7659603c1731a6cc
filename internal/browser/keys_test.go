package browser

import (
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyCombo(t *testing.T) {
	tests := []struct {
		combo string
		want  KeyCombo
	}{
		{"Enter", KeyCombo{Key: kb.Enter}},
		{"a", KeyCombo{Key: "a"}},
		{"A", KeyCombo{Key: "A"}},
		{"CTRL+A", KeyCombo{Modifiers: []input.Modifier{input.ModifierCtrl}, Key: "a"}},
		{"shift+Tab", KeyCombo{Modifiers: []input.Modifier{input.ModifierShift}, Key: kb.Tab}},
		{"ctrl+shift+ArrowLeft", KeyCombo{Modifiers: []input.Modifier{input.ModifierCtrl, input.ModifierShift}, Key: kb.ArrowLeft}},
		{"cmd + c", KeyCombo{Modifiers: []input.Modifier{input.ModifierMeta}, Key: "c"}},
		{"ctrl+control+x", KeyCombo{Modifiers: []input.Modifier{input.ModifierCtrl}, Key: "x"}},
		{"+", KeyCombo{Key: "+"}},
		{"ctrl++", KeyCombo{Modifiers: []input.Modifier{input.ModifierCtrl}, Key: "+"}},
		{"space", KeyCombo{Key: " "}},
		{"ESC", KeyCombo{Key: kb.Escape}},
	}
	for _, tt := range tests {
		t.Run(tt.combo, func(t *testing.T) {
			got, err := ParseKeyCombo(tt.combo)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKeyCombo_Invalid(t *testing.T) {
	for _, combo := range []string{"", "  ", "ctrl+", "hyper+a", "ctrl+NotAKey", "a+b"} {
		_, err := ParseKeyCombo(combo)
		assert.Error(t, err, combo)
	}
}
