// File: internal/browser/computer.go
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/api/schemas"
	"github.com/xkilldash9x/autopilot/internal/agent"
	"github.com/xkilldash9x/autopilot/internal/config"
)

const (
	locatePollInterval = 100 * time.Millisecond
	defaultLocateWait  = 5 * time.Second
	dragSteps          = 8
)

// ChromeComputer drives a single Chrome tab over the DevTools protocol.
// Operations are serialized; the tab is shared by everything the agent does.
type ChromeComputer struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	mu        sync.Mutex
	closeOnce sync.Once
}

var _ agent.Computer = (*ChromeComputer)(nil)

// pageFingerprint is compared before and after an action to decide whether
// it changed anything.
type pageFingerprint struct {
	URL     string `json:"url"`
	Nodes   int    `json:"nodes"`
	Text    int    `json:"text"`
	ScrollX int    `json:"scroll_x"`
	ScrollY int    `json:"scroll_y"`
}

// NewChromeComputer launches Chrome and prepares its first tab. The browser
// lives until Close is called or ctx is cancelled.
func NewChromeComputer(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*ChromeComputer, error) {
	log := logger.Named("browser")
	log.Info("Launching browser...", zap.Bool("headless", cfg.Headless))

	// 1. Allocator and tab.
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg)...)
	sugar := log.Sugar()
	ctxOpts := []chromedp.ContextOption{chromedp.WithErrorf(sugar.Debugf)}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(sugar.Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	c := &ChromeComputer{
		cfg:         cfg,
		logger:      log,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}

	// 2. The first Run starts the browser. It must use the tab context itself,
	// since cancelling the context of the first Run kills the process.
	setup := []chromedp.Action{
		emulation.SetDeviceMetricsOverride(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight), 1, false),
	}
	if cfg.SingleTab {
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(singleTabScript).Do(ctx)
			return err
		}))
	}
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		c.Close()
		return nil, agent.NewDeviceError(err, "failed to launch browser")
	}

	// 3. Clipboard actions need the permission; older builds may refuse it.
	grant := cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{
		cdpbrowser.PermissionTypeClipboardReadWrite,
		cdpbrowser.PermissionTypeClipboardSanitizedWrite,
	})
	if err := chromedp.Run(tabCtx, grant); err != nil {
		log.Debug("Clipboard permission not granted.", zap.Error(err))
	}

	log.Info("Browser ready.",
		zap.Int("viewport_width", cfg.ViewportWidth),
		zap.Int("viewport_height", cfg.ViewportHeight))
	return c, nil
}

// Close shuts the browser down.
func (c *ChromeComputer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = chromedp.Cancel(c.tabCtx)
		c.tabCancel()
		c.allocCancel()
		c.logger.Info("Browser closed.")
	})
	return err
}

// Open implements agent.Computer.
func (c *ChromeComputer) Open(ctx context.Context, url string) (schemas.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.navigate(ctx, url); err != nil {
		return schemas.Snapshot{}, agent.NewDeviceError(err, "failed to open %s", url)
	}
	snap, err := c.observe(ctx)
	if err != nil {
		return schemas.Snapshot{}, agent.NewDeviceError(err, "failed to observe %s", url)
	}
	return snap, nil
}

// Observe implements agent.Computer.
func (c *ChromeComputer) Observe(ctx context.Context) (schemas.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.observe(ctx)
	if err != nil {
		return schemas.Snapshot{}, agent.NewDeviceError(err, "failed to observe page")
	}
	return snap, nil
}

// Locate implements agent.Computer.
func (c *ChromeComputer) Locate(ctx context.Context, loc schemas.Locator, timeout time.Duration) (schemas.ElementDescriptor, error) {
	if err := loc.Validate(); err != nil {
		return schemas.ElementDescriptor{}, agent.NewDeviceError(err, "invalid locator")
	}
	if loc.IsCoordinates() {
		return schemas.ElementDescriptor{
			Locator:     loc,
			Description: fmt.Sprintf("point (%d,%d)", loc.X, loc.Y),
			Rect:        &schemas.Rect{X: float64(loc.X), Y: float64(loc.Y)},
		}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.find(ctx, loc, "", nil, timeout)
	if err != nil {
		return schemas.ElementDescriptor{}, agent.NewDeviceError(err, "failed to locate %s", loc)
	}
	return schemas.ElementDescriptor{Locator: loc, Description: res.Description, Rect: res.rect()}, nil
}

// Execute implements agent.Computer. Changed compares page fingerprints taken
// before and after the action.
func (c *ChromeComputer) Execute(ctx context.Context, action schemas.Action, timeout time.Duration) (schemas.ActionResult, error) {
	if err := action.Validate(); err != nil {
		return schemas.ActionResult{}, agent.NewDeviceError(err, "invalid action")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	before, err := c.fingerprint(ctx)
	if err != nil {
		return schemas.ActionResult{}, agent.NewDeviceError(err, "failed to inspect page before %s", action.Type)
	}

	msg, err := c.perform(ctx, action, timeout)
	if err != nil {
		return schemas.ActionResult{}, agent.NewDeviceError(err, "%s failed", action.Type)
	}

	if action.Type != schemas.ActionWait && action.Type != schemas.ActionNavigate && c.cfg.PostLoadWait > 0 {
		if err := c.run(ctx, chromedp.Sleep(c.cfg.PostLoadWait)); err != nil {
			return schemas.ActionResult{}, agent.NewDeviceError(err, "interrupted after %s", action.Type)
		}
	}
	c.keepSingleTab(ctx)

	after, err := c.fingerprint(ctx)
	if err != nil {
		return schemas.ActionResult{}, agent.NewDeviceError(err, "failed to inspect page after %s", action.Type)
	}
	snap, err := c.observe(ctx)
	if err != nil {
		return schemas.ActionResult{}, agent.NewDeviceError(err, "failed to observe page after %s", action.Type)
	}

	c.logger.Debug("Action executed.", zap.Stringer("action", action), zap.Bool("changed", before != after))
	return schemas.ActionResult{Snapshot: snap, Changed: before != after, Message: msg}, nil
}

func (c *ChromeComputer) perform(ctx context.Context, action schemas.Action, timeout time.Duration) (string, error) {
	switch action.Type {
	case schemas.ActionClick:
		x, y, desc, err := c.point(ctx, *action.Target, timeout)
		if err != nil {
			return "", err
		}
		count := action.ClickCount
		if count <= 0 {
			count = 1
		}
		return "clicked " + desc, c.run(ctx, chromedp.MouseClickXY(x, y, chromedp.ClickCount(count)))

	case schemas.ActionTypeText:
		if err := c.focus(ctx, *action.Target, timeout); err != nil {
			return "", err
		}
		return fmt.Sprintf("typed %d characters", len([]rune(action.Text))), c.run(ctx, input.InsertText(action.Text))

	case schemas.ActionKey:
		combo, err := ParseKeyCombo(action.Combo)
		if err != nil {
			return "", err
		}
		return "pressed " + action.Combo, c.run(ctx, chromedp.KeyEvent(combo.Key, chromedp.KeyModifiers(combo.Modifiers...)))

	case schemas.ActionHover:
		x, y, desc, err := c.point(ctx, *action.Target, timeout)
		if err != nil {
			return "", err
		}
		return "hovered " + desc, c.run(ctx, input.DispatchMouseEvent(input.MouseMoved, x, y))

	case schemas.ActionScroll:
		return c.scroll(ctx, action, timeout)

	case schemas.ActionDrag:
		return c.drag(ctx, *action.Target, *action.To, timeout)

	case schemas.ActionNavigate:
		return "navigated to " + action.URL, c.navigate(ctx, action.URL)

	case schemas.ActionSubmit:
		if action.Target.IsCoordinates() {
			return "submitted", c.run(ctx, chromedp.MouseClickXY(float64(action.Target.X), float64(action.Target.Y)))
		}
		res, err := c.find(ctx, *action.Target, "submit", nil, timeout)
		if err != nil {
			return "", err
		}
		if res.Error != "" {
			return "", fmt.Errorf("cannot submit %s: %s", action.Target, res.Error)
		}
		return "submitted " + res.Description, nil

	case schemas.ActionFileUpload:
		sel, by, err := uploadQuery(*action.Target)
		if err != nil {
			return "", err
		}
		return "uploaded " + action.Path, c.run(ctx, chromedp.SetUploadFiles(sel, []string{action.Path}, by))

	case schemas.ActionClipboardRead:
		var text string
		if err := c.eval(ctx, clipboardReadExpression, &text); err != nil {
			return "", err
		}
		return text, nil

	case schemas.ActionClipboardWrite:
		expr, err := clipboardWriteExpression(action.Text)
		if err != nil {
			return "", err
		}
		var ok bool
		return "copied to clipboard", c.eval(ctx, expr, &ok)

	case schemas.ActionWait:
		d := time.Duration(action.DurationMs) * time.Millisecond
		return fmt.Sprintf("waited %s", d), c.run(ctx, chromedp.Sleep(d))

	default:
		return "", fmt.Errorf("unsupported action %q", action.Type)
	}
}

func (c *ChromeComputer) scroll(ctx context.Context, action schemas.Action, timeout time.Duration) (string, error) {
	switch {
	case action.Target == nil:
		var ok bool
		return fmt.Sprintf("scrolled by (%d,%d)", action.DX, action.DY), c.eval(ctx, scrollExpression(action.DX, action.DY), &ok)
	case action.Target.IsCoordinates():
		wheel := input.DispatchMouseEvent(input.MouseWheel, float64(action.Target.X), float64(action.Target.Y)).
			WithDeltaX(float64(action.DX)).
			WithDeltaY(float64(action.DY))
		return fmt.Sprintf("scrolled at %s", action.Target), c.run(ctx, wheel)
	default:
		res, err := c.find(ctx, *action.Target, "scroll", scrollArg{DX: action.DX, DY: action.DY}, timeout)
		if err != nil {
			return "", err
		}
		return "scrolled " + res.Description, nil
	}
}

func (c *ChromeComputer) drag(ctx context.Context, from, to schemas.Locator, timeout time.Duration) (string, error) {
	x0, y0, fromDesc, err := c.point(ctx, from, timeout)
	if err != nil {
		return "", err
	}
	x1, y1, toDesc, err := c.point(ctx, to, timeout)
	if err != nil {
		return "", err
	}

	actions := []chromedp.Action{
		input.DispatchMouseEvent(input.MouseMoved, x0, y0),
		input.DispatchMouseEvent(input.MousePressed, x0, y0).WithButton(input.Left).WithClickCount(1),
	}
	for i := 1; i <= dragSteps; i++ {
		f := float64(i) / dragSteps
		actions = append(actions, input.DispatchMouseEvent(input.MouseMoved, x0+(x1-x0)*f, y0+(y1-y0)*f).WithButton(input.Left))
	}
	actions = append(actions, input.DispatchMouseEvent(input.MouseReleased, x1, y1).WithButton(input.Left).WithClickCount(1))

	return fmt.Sprintf("dragged %s to %s", fromDesc, toDesc), c.run(ctx, actions...)
}

func (c *ChromeComputer) navigate(ctx context.Context, url string) error {
	if c.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.NavigationTimeout)
		defer cancel()
	}
	actions := []chromedp.Action{chromedp.Navigate(url)}
	if c.cfg.PostLoadWait > 0 {
		actions = append(actions, chromedp.Sleep(c.cfg.PostLoadWait))
	}
	if err := c.run(ctx, actions...); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	c.keepSingleTab(ctx)
	return nil
}

func (c *ChromeComputer) observe(ctx context.Context) (schemas.Snapshot, error) {
	var (
		url, title, summary string
		png                 []byte
	)
	actions := []chromedp.Action{
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.CaptureScreenshot(&png),
	}
	if c.cfg.CaptureDOMSummary {
		actions = append(actions, chromedp.Evaluate(domSummaryScript, &summary))
	}
	if err := c.run(ctx, actions...); err != nil {
		return schemas.Snapshot{}, err
	}
	return schemas.Snapshot{
		ID:          uuid.New().String(),
		URL:         url,
		Title:       title,
		ImageBase64: base64.StdEncoding.EncodeToString(png),
		DOMSummary:  summary,
	}, nil
}

func (c *ChromeComputer) fingerprint(ctx context.Context) (pageFingerprint, error) {
	var fp pageFingerprint
	err := c.run(ctx, chromedp.Evaluate(fingerprintScript, &fp))
	return fp, err
}

// point resolves loc to viewport coordinates.
func (c *ChromeComputer) point(ctx context.Context, loc schemas.Locator, timeout time.Duration) (float64, float64, string, error) {
	if loc.IsCoordinates() {
		return float64(loc.X), float64(loc.Y), loc.String(), nil
	}
	res, err := c.find(ctx, loc, "", nil, timeout)
	if err != nil {
		return 0, 0, "", err
	}
	x, y := res.rect().Center()
	return float64(x), float64(y), res.Description, nil
}

// focus prepares loc for text input. The wildcard keeps the current focus.
func (c *ChromeComputer) focus(ctx context.Context, loc schemas.Locator, timeout time.Duration) error {
	switch {
	case loc.IsWildcard():
		return nil
	case loc.IsCoordinates():
		return c.run(ctx, chromedp.MouseClickXY(float64(loc.X), float64(loc.Y)))
	default:
		_, err := c.find(ctx, loc, "focus", nil, timeout)
		return err
	}
}

// find polls the page until loc matches or the wait elapses. op is applied
// in-page to the first match.
func (c *ChromeComputer) find(ctx context.Context, loc schemas.Locator, op string, arg any, timeout time.Duration) (locateResult, error) {
	expr, err := locateExpression(loc, op, arg)
	if err != nil {
		return locateResult{}, err
	}
	if timeout <= 0 {
		timeout = defaultLocateWait
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(locatePollInterval)
	defer ticker.Stop()
	for {
		var res locateResult
		if err := c.eval(waitCtx, expr, &res); err != nil {
			if waitCtx.Err() != nil {
				return locateResult{}, fmt.Errorf("no element matches %s: %w", loc, waitCtx.Err())
			}
			return locateResult{}, err
		}
		if res.Found {
			return res, nil
		}

		select {
		case <-waitCtx.Done():
			return locateResult{}, fmt.Errorf("no element matches %s: %w", loc, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (c *ChromeComputer) eval(ctx context.Context, expr string, res any) error {
	return c.run(ctx, chromedp.Evaluate(expr, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

// keepSingleTab re-applies the tab script to the current document.
func (c *ChromeComputer) keepSingleTab(ctx context.Context) {
	if !c.cfg.SingleTab {
		return
	}
	var ok bool
	if err := c.run(ctx, chromedp.Evaluate(singleTabScript, &ok)); err != nil {
		c.logger.Debug("Failed to apply single tab script.", zap.Error(err))
	}
}

// run executes actions on the tab, bounded by ctx.
func (c *ChromeComputer) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := combineContext(c.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

func uploadQuery(loc schemas.Locator) (string, chromedp.QueryOption, error) {
	switch loc.By {
	case schemas.ByCSS:
		return loc.Selector, chromedp.ByQuery, nil
	case schemas.ByXPath:
		return loc.Expr, chromedp.BySearch, nil
	case schemas.ByID:
		return loc.ID, chromedp.ByID, nil
	default:
		return "", nil, fmt.Errorf("file upload needs a css, xpath or id locator, got %s", loc.By)
	}
}
