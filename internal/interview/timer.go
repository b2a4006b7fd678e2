package interview

import (
	"sync"
	"time"
)

// SessionTimer bounds a single listening window. It fires its callback at most
// once; [SessionTimer.Cancel] and a racing expiry are serialized so that
// whichever wins, the other becomes a no-op. The deadline is tracked against
// the monotonic clock, so wall-clock adjustments do not shorten or extend the
// window.
type SessionTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	done     bool
}

// NewSessionTimer starts a timer that invokes fn after d. fn runs on the
// timer's own goroutine. If Cancel wins the race with an expiring timer the
// callback never runs; if the expiry wins, Cancel reports zero remaining.
func NewSessionTimer(d time.Duration, fn func()) *SessionTimer {
	t := &SessionTimer{deadline: time.Now().Add(d)}
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.done {
			t.mu.Unlock()
			return
		}
		t.done = true
		t.mu.Unlock()
		fn()
	})
	return t
}

// Cancel stops the timer and returns the unelapsed remainder of the window,
// clamped to zero. If the timer already fired (or was already cancelled) it
// returns zero and does nothing.
func (t *SessionTimer) Cancel() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return 0
	}
	t.done = true
	t.timer.Stop()
	rem := time.Until(t.deadline)
	if rem < 0 {
		rem = 0
	}
	return rem
}
