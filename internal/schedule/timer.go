// Package schedule provides a single-slot cancellable delayed task.
//
// A Timer holds at most one pending run. Scheduling again replaces the pending
// run, and Cancel before the delay elapses turns it into a no-op. Stop is
// used on teardown and makes every later Schedule a no-op.
package schedule

import (
	"sync"
	"time"
)

// Timer runs the most recently scheduled effect after its delay.
type Timer struct {
	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// Schedule runs fn after d, cancelling any run that is still pending.
// It returns false when the timer has been stopped.
func (t *Timer) Schedule(d time.Duration, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.cancelLocked()
	gen := t.gen
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.gen != gen || t.stopped {
			t.mu.Unlock()
			return
		}
		t.timer = nil
		t.mu.Unlock()
		fn()
	})
	return true
}

// Cancel drops the pending run, if any.
func (t *Timer) Cancel() {
	t.mu.Lock()
	t.cancelLocked()
	t.mu.Unlock()
}

// Pending reports whether a run is scheduled and has not fired yet.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Stop cancels the pending run and disables the timer.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.cancelLocked()
	t.stopped = true
	t.mu.Unlock()
}

func (t *Timer) cancelLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
