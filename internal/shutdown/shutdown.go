// Package shutdown implements the one-shot, idempotent cross-task shutdown
// signal of spec.md §3/§5. Grounded on
// original_source/src/runtime/linux/sync.rs's ShutdownSignal, which
// combines an atomic flag with a notify primitive to avoid the missed-wakeup
// race a bare condition variable has; translated to Go's channel-close
// idiom, which gives the same "any number of waiters, wakes them all,
// idempotent" guarantee for free.
package shutdown

import (
	"sync"
	"time"
)

// Signal is a one-shot shutdown notification. The zero value is not usable;
// construct with New.
type Signal struct {
	once sync.Once
	done chan struct{}
}

// New constructs an unfired Signal.
func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Fire sets the signal. Safe to call any number of times and from any
// goroutine; only the first call has effect, per spec.md §3.
func (s *Signal) Fire() {
	s.once.Do(func() { close(s.done) })
}

// Done returns a channel that is closed once Fire has been called. Select
// on it alongside a timer to implement spec.md §4.9's "race sleep(d)
// against shutdown.wait()".
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Fired reports whether Fire has already been called.
func (s *Signal) Fired() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// WaitTimeout blocks until either d elapses or the signal fires, whichever
// comes first, returning true if the signal fired. A d <= 0 waits on the
// signal only (spec.md §4.9 step 1: "If d is None, wait on shutdown only").
func (s *Signal) WaitTimeout(d time.Duration) bool {
	if d <= 0 {
		<-s.done
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.done:
		return true
	case <-timer.C:
		return false
	}
}
