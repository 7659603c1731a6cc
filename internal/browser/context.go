// File: internal/browser/context.go
package browser

import "context"

// combineContext derives a context from tab (which carries the chromedp
// target) that is also cancelled when op is done.
func combineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tab)
	if deadline, ok := op.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		combined, cancelDeadline = context.WithDeadline(combined, deadline)
		inner := cancel
		cancel = func() {
			cancelDeadline()
			inner()
		}
	}

	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
