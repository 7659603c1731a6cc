// File: internal/browser/script.go
package browser

import (
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

// singleTabScript keeps navigation in the current tab: target=_blank links
// lose their target and window.open navigates in place.
const singleTabScript = `(() => {
  if (window.__autopilotSingleTab) return true;
  window.__autopilotSingleTab = true;
  const retarget = (root) => {
    root.querySelectorAll('a[target], form[target]').forEach((el) => el.removeAttribute('target'));
  };
  document.addEventListener('click', (ev) => {
    const a = ev.target && ev.target.closest ? ev.target.closest('a[target]') : null;
    if (a) a.removeAttribute('target');
  }, true);
  window.open = function (url) {
    if (url) window.location.href = url;
    return window;
  };
  if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', () => retarget(document));
  } else {
    retarget(document);
  }
  return true;
})();`

// fingerprintScript summarizes the page cheaply enough to run around every action.
const fingerprintScript = `(() => ({
  url: location.href,
  nodes: document.getElementsByTagName('*').length,
  text: document.body ? document.body.innerText.length : 0,
  scroll_x: Math.round(window.scrollX),
  scroll_y: Math.round(window.scrollY)
}))()`

// domSummaryScript lists the visible interactive elements, one per line.
const domSummaryScript = `(() => {
  const out = [];
  const sel = 'a, button, input, select, textarea, [role], [contenteditable="true"]';
  for (const el of document.querySelectorAll(sel)) {
    const r = el.getBoundingClientRect();
    if (r.width === 0 || r.height === 0) continue;
    const label = (el.getAttribute('aria-label') || el.innerText || el.value || el.placeholder || '').trim().replace(/\s+/g, ' ').slice(0, 80);
    const role = el.getAttribute('role') || el.tagName.toLowerCase();
    out.push(role + (el.id ? '#' + el.id : '') + ' "' + label + '" @' + Math.round(r.x + r.width / 2) + ',' + Math.round(r.y + r.height / 2));
    if (out.length >= 200) break;
  }
  return out.join('\n');
})()`

// locateFunc resolves a locator in the page and describes the match. It is
// invoked with the JSON-encoded locator and an action name.
const locateFunc = `(loc, op, arg) => {
  const byText = (pattern) => {
    const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_ELEMENT);
    let best = null;
    while (walker.nextNode()) {
      const el = walker.currentNode;
      if ((el.innerText || '').includes(pattern)) best = el;
    }
    return best;
  };
  const byAria = (role, name) => {
    const tag = /^[a-z]+$/.test(role) ? ', ' + role : '';
    for (const el of document.querySelectorAll('[role="' + CSS.escape(role) + '"]' + tag)) {
      if (!name) return el;
      const label = (el.getAttribute('aria-label') || el.innerText || '').trim();
      if (label === name || label.includes(name)) return el;
    }
    return null;
  };
  let el = null;
  switch (loc.by) {
    case 'css':
      el = loc.selector === '*' ? document.activeElement : document.querySelector(loc.selector);
      break;
    case 'xpath':
      el = document.evaluate(loc.expr, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
      break;
    case 'text':
      el = byText(loc.pattern);
      break;
    case 'id':
      el = document.getElementById(loc.id);
      break;
    case 'aria':
      el = byAria(loc.role, loc.name || '');
      break;
  }
  if (!el) return { found: false };
  if (op === 'scroll') el.scrollBy(arg.dx, arg.dy);
  if (op === 'submit') {
    const form = el.form || el.closest('form');
    if (!form) return { found: true, error: 'element is not inside a form' };
    if (form.requestSubmit) form.requestSubmit(); else form.submit();
  }
  if (op === 'focus' && el.focus) el.focus();
  if (op !== 'submit') el.scrollIntoView({ block: 'center', inline: 'center' });
  const r = el.getBoundingClientRect();
  const text = (el.getAttribute('aria-label') || el.innerText || el.value || '').trim().replace(/\s+/g, ' ').slice(0, 80);
  return {
    found: true,
    description: el.tagName.toLowerCase() + (el.id ? '#' + el.id : '') + (text ? ' "' + text + '"' : ''),
    x: r.x, y: r.y, width: r.width, height: r.height
  };
}`

// locateResult is what locateFunc returns.
type locateResult struct {
	Found       bool    `json:"found"`
	Error       string  `json:"error,omitempty"`
	Description string  `json:"description,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
}

func (r locateResult) rect() *schemas.Rect {
	return &schemas.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

// locateExpression builds the call of locateFunc for loc. op is "" (plain
// lookup), "focus", "scroll" or "submit".
func locateExpression(loc schemas.Locator, op string, arg any) (string, error) {
	locJSON, err := json.MarshalToString(loc)
	if err != nil {
		return "", fmt.Errorf("failed to encode locator: %w", err)
	}
	opJSON, _ := json.MarshalToString(op)
	argJSON, err := json.MarshalToString(arg)
	if err != nil {
		return "", fmt.Errorf("failed to encode locator argument: %w", err)
	}
	return fmt.Sprintf("(%s)(%s, %s, %s)", locateFunc, locJSON, opJSON, argJSON), nil
}

// scrollArg is the argument of the "scroll" locate operation.
type scrollArg struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

// scrollExpression scrolls the window.
func scrollExpression(dx, dy int) string {
	return fmt.Sprintf("(window.scrollBy(%d, %d), true)", dx, dy)
}

// clipboardWriteExpression writes text through the async clipboard API.
func clipboardWriteExpression(text string) (string, error) {
	textJSON, err := json.MarshalToString(text)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("navigator.clipboard.writeText(%s).then(() => true)", textJSON), nil
}

const clipboardReadExpression = `navigator.clipboard.readText()`
