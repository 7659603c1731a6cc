package agent

import (
	"sync"
	"time"
)

// waitTimeout waits for wg, giving up after timeout. It reports whether the
// group finished in time.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
