package sched

import (
	"sync"
	"time"

	"github.com/ValentinKolb/qtable/lib/util"
)

// Manual is a Scheduler driven by an explicit clock. Nothing runs until the
// caller calls Advance or RunPending; callbacks then run on the caller's
// goroutine, without any lock held, so they may schedule further callbacks.
//
// Thread-safety: all methods are thread-safe.
type Manual struct {
	mu      sync.Mutex
	now     uint64
	nextID  uint64
	pending *util.DeadlineHeap[func()]
}

// NewManual creates a manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{pending: util.NewDeadlineHeap[func()]()}
}

// Schedule implements Scheduler.
func (m *Manual) Schedule(delay time.Duration, fn func()) Handle {
	if delay < 0 {
		delay = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.pending.Add(m.nextID, m.now+uint64(delay), fn)
	return Handle(m.nextID)
}

// Cancel implements Scheduler.
func (m *Manual) Cancel(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending.Remove(uint64(h))
}

// Now returns the manual clock.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Duration(m.now)
}

// Len returns the number of callbacks waiting to run.
func (m *Manual) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.Len()
}

// Advance moves the clock forward by d and runs every callback that becomes due,
// including callbacks scheduled by other callbacks within the window.
// Returns the number of callbacks run.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now + uint64(d)
	m.mu.Unlock()

	ran := 0
	for {
		m.mu.Lock()
		it, ok := m.pending.PopDue(target)
		if !ok {
			m.now = target
			m.mu.Unlock()
			return ran
		}
		if it.Deadline > m.now {
			m.now = it.Deadline
		}
		m.mu.Unlock()

		runGuarded(it.Value)
		ran++
	}
}

// RunPending runs every callback that is queued at the time of the call exactly
// once, in deadline order, without moving the clock. Callbacks scheduled while
// RunPending runs are left for the next call. Returns the number of callbacks run.
func (m *Manual) RunPending() int {
	m.mu.Lock()
	var batch []func()
	for {
		it, ok := m.pending.PopDue(^uint64(0))
		if !ok {
			break
		}
		batch = append(batch, it.Value)
	}
	m.mu.Unlock()

	for _, fn := range batch {
		runGuarded(fn)
	}
	return len(batch)
}
