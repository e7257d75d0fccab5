// Package orchestrator sequences the safety-gate pipeline for each incoming
// event, owns the per-session inactivity timer, and decides between generated
// and fallback output.
package orchestrator

import (
	"sync"
	"time"
)

// inactivityTimer is the single owned inactivity timer for one session.
// Start and Stop carry explicit cancel semantics: each schedule gets a
// generation number, and the fire callback receives it so the session can
// claim the fire under its own mutex. A fire whose generation was
// invalidated by a Stop or restart in the meantime is a no-op, even when it
// fired before the cancellation but had not yet entered the pipeline.
type inactivityTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// Start arms the timer with a new duration, cancelling any previous schedule.
// The callback must call claim with the given generation before acting on
// the fire.
func (t *inactivityTimer) Start(d time.Duration, fn func(gen uint64)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(d, func() {
		fn(gen)
	})
}

// Stop cancels the pending schedule, if any.
func (t *inactivityTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

// Active reports whether a schedule is currently armed.
func (t *inactivityTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// claim checks that the firing schedule is still the current one and, if so,
// marks the timer as consumed. The caller holds the session mutex, so a fire
// racing a response event is voided by the response's Stop even when the
// fire happened first.
func (t *inactivityTimer) claim(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return false
	}
	t.timer = nil
	return true
}
