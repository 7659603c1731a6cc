// File: internal/browser/options.go
package browser

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/autopilot/internal/config"
)

// chromeFlag is one command line switch; Value is a bool or a string.
type chromeFlag struct {
	Name  string
	Value any
}

// AllocatorOptions assembles the Chrome launch options for cfg on top of
// chromedp's defaults.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range chromeFlags(cfg, runtime.GOOS) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

func chromeFlags(cfg config.BrowserConfig, goos string) []chromeFlag {
	flags := []chromeFlag{
		{"headless", cfg.Headless},
		{"disable-gpu", cfg.Headless},
		{"no-first-run", true},
		{"no-default-browser-check", true},
		{"window-size", fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight)},
	}
	if cfg.UserAgent != "" {
		flags = append(flags, chromeFlag{"user-agent", cfg.UserAgent})
	}
	if cfg.IgnoreTLSErrors {
		flags = append(flags,
			chromeFlag{"ignore-certificate-errors", true},
			chromeFlag{"allow-insecure-localhost", true},
		)
	}

	for _, arg := range cfg.ExtraFlags {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags = append(flags, chromeFlag{name, parts[1]})
		} else {
			flags = append(flags, chromeFlag{name, true})
		}
	}

	// Containers on Linux usually lack a usable sandbox and a large /dev/shm.
	if goos == "linux" {
		flags = append(flags,
			chromeFlag{"no-sandbox", true},
			chromeFlag{"disable-dev-shm-usage", true},
		)
	}
	return flags
}
