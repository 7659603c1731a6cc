// File: internal/browser/options_test.go
package browser

import (
	"runtime"
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/autopilot/internal/config"
)

// flagValue returns the value of the last flag called name.
func flagValue(flags []chromeFlag, name string) (any, bool) {
	var (
		v  any
		ok bool
	)
	for _, f := range flags {
		if f.Name == name {
			v, ok = f.Value, true
		}
	}
	return v, ok
}

func TestChromeFlags(t *testing.T) {
	base := config.NewDefaultConfig().Browser()

	t.Run("Defaults", func(t *testing.T) {
		flags := chromeFlags(base, "darwin")
		v, ok := flagValue(flags, "headless")
		assert.True(t, ok)
		assert.Equal(t, base.Headless, v)

		v, _ = flagValue(flags, "window-size")
		assert.Equal(t, "1280,800", v)

		_, ok = flagValue(flags, "ignore-certificate-errors")
		assert.False(t, ok)
		_, ok = flagValue(flags, "no-sandbox")
		assert.False(t, ok, "sandbox flags are linux only")
	})

	t.Run("IgnoreTLSErrors", func(t *testing.T) {
		cfg := base
		cfg.IgnoreTLSErrors = true
		flags := chromeFlags(cfg, "darwin")
		_, ok := flagValue(flags, "ignore-certificate-errors")
		assert.True(t, ok)
		_, ok = flagValue(flags, "allow-insecure-localhost")
		assert.True(t, ok)
	})

	t.Run("UserAgent", func(t *testing.T) {
		cfg := base
		cfg.UserAgent = "autopilot-test"
		v, ok := flagValue(chromeFlags(cfg, "darwin"), "user-agent")
		assert.True(t, ok)
		assert.Equal(t, "autopilot-test", v)
	})

	t.Run("ExtraFlags", func(t *testing.T) {
		cfg := base
		cfg.ExtraFlags = []string{"--lang=de-DE", "--mute-audio", "--"}
		flags := chromeFlags(cfg, "darwin")

		v, _ := flagValue(flags, "lang")
		assert.Equal(t, "de-DE", v)
		v, _ = flagValue(flags, "mute-audio")
		assert.Equal(t, true, v)
		_, ok := flagValue(flags, "")
		assert.False(t, ok)
	})

	t.Run("Linux", func(t *testing.T) {
		flags := chromeFlags(base, "linux")
		_, ok := flagValue(flags, "no-sandbox")
		assert.True(t, ok)
		_, ok = flagValue(flags, "disable-dev-shm-usage")
		assert.True(t, ok)
	})
}

func TestAllocatorOptions(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser()
	opts := AllocatorOptions(cfg)
	assert.Len(t, opts, len(chromedp.DefaultExecAllocatorOptions)+len(chromeFlags(cfg, runtime.GOOS)))

	cfg.ExecPath = "/opt/chrome/chrome"
	assert.Len(t, AllocatorOptions(cfg), len(opts)+1)
}
