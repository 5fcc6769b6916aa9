// Package latch implements the single-shot, re-armable wakeup signal used
// by the Scheduler and Worker main loops to park between cycles. It
// generalizes the bare `wake chan struct{}` field golly's chrono.Scheduler
// keeps for exactly this purpose into something safe against repeated or
// concurrent Set calls.
package latch

import "sync"

// Latch is a single-shot signal that can be waited on, set, and rearmed.
// Set is idempotent: calling it multiple times before Wait observes it
// only wakes the waiter once, and does not block or panic.
type Latch struct {
	mu sync.Mutex
	ch chan struct{}
}

// New returns a freshly armed Latch.
func New() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Set signals the latch. Safe to call from any goroutine, any number of
// times, including before anyone has called Wait.
func (l *Latch) Set() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.ch:
		// already set
	default:
		close(l.ch)
	}
}

// Wait blocks until Set is called, or returns immediately if it already
// was. It does not rearm the latch — call Rearm for that.
func (l *Latch) Wait() {
	l.mu.Lock()
	ch := l.ch
	l.mu.Unlock()
	<-ch
}

// Rearm replaces the latch with a fresh, unset one. Call this after Wait
// returns so the next cycle parks on a clean signal.
func (l *Latch) Rearm() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.ch:
		l.ch = make(chan struct{})
	default:
		// still armed; nothing to do
	}
}
