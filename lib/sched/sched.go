package sched

import (
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("sched")

// Handle identifies a scheduled callback. The zero Handle is never returned
// for a scheduled callback.
type Handle uint64

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	// Schedule arranges for fn to run once, no earlier than delay from now.
	// It returns the zero Handle if fn was dropped and will never run.
	Schedule(delay time.Duration, fn func()) Handle
	// Cancel drops a callback that has not started yet. Cancelling a callback
	// that already ran, or an unknown handle, is a no-op.
	Cancel(h Handle)
}

var (
	defaultOnce  sync.Once
	defaultTimer *Timer
)

// Default returns the process-wide timer scheduler.
//
// Thread-safety: This function is thread-safe.
func Default() Scheduler {
	defaultOnce.Do(func() {
		defaultTimer = NewTimer()
	})
	return defaultTimer
}

// runGuarded runs fn and logs instead of crashing the scheduler if it panics.
func runGuarded(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			plog.Errorf("scheduled callback panicked: %v", r)
		}
	}()
	fn()
}
