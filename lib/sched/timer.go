package sched

import (
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/qtable/lib/util"
)

// idleWait is how long the scheduler goroutine sleeps when nothing is queued.
// Any Schedule call wakes it earlier through the request queue.
const idleWait = time.Hour

type request struct {
	cancel bool
	id     uint64
	at     uint64 // nanoseconds since the scheduler started
	fn     func()
}

// Timer is a goroutine-backed Scheduler.
type Timer struct {
	requests *util.LockFreeMPSC[request]
	nextID   atomic.Uint64
	start    time.Time
	queued   atomic.Int64
	stopped  chan struct{}
}

// NewTimer creates a Timer and starts its goroutine.
func NewTimer() *Timer {
	s := &Timer{
		requests: util.NewLockFreeMPSC[request](),
		start:    time.Now(),
		stopped:  make(chan struct{}),
	}
	go s.loop()
	return s
}

// elapsed returns the monotonic time since the scheduler was created.
func (s *Timer) elapsed() uint64 {
	return uint64(time.Since(s.start))
}

// Schedule implements Scheduler. After Close it drops fn and returns the zero
// Handle.
//
// Thread-safety: This method is thread-safe and never blocks.
func (s *Timer) Schedule(delay time.Duration, fn func()) Handle {
	if delay < 0 {
		delay = 0
	}
	id := s.nextID.Add(1)
	if !s.requests.Push(&request{id: id, at: s.elapsed() + uint64(delay), fn: fn}) {
		plog.Warningf("schedule on stopped timer dropped")
		return 0
	}
	s.queued.Add(1)
	return Handle(id)
}

// Cancel implements Scheduler.
//
// Thread-safety: This method is thread-safe and never blocks.
func (s *Timer) Cancel(h Handle) {
	if h == 0 {
		return
	}
	s.requests.Push(&request{cancel: true, id: uint64(h)})
}

// Len returns the number of callbacks scheduled and not yet run or cancelled.
func (s *Timer) Len() int {
	return int(s.queued.Load())
}

// Close stops the scheduler goroutine. Callbacks that have not run are dropped.
// Close blocks until the goroutine has exited.
func (s *Timer) Close() {
	s.requests.Close()
	<-s.stopped
}

// loop owns the deadline heap. It is the only goroutine that touches it.
func (s *Timer) loop() {
	defer close(s.stopped)

	pending := util.NewDeadlineHeap[func()]()
	wait := time.NewTimer(idleWait)
	defer wait.Stop()

	for {
		select {
		case req, ok := <-s.requests.Recv():
			if !ok {
				if pending.Len() > 0 {
					plog.Infof("timer stopped with %d callbacks pending", pending.Len())
				}
				return
			}
			if req.cancel {
				if _, found := pending.Remove(req.id); found {
					s.queued.Add(-1)
				}
			} else {
				pending.Add(req.id, req.at, req.fn)
			}

		case <-wait.C:
		}

		// run everything that is due, in deadline order
		now := s.elapsed()
		for {
			it, ok := pending.PopDue(now)
			if !ok {
				break
			}
			s.queued.Add(-1)
			runGuarded(it.Value)
		}

		next := idleWait
		if top, ok := pending.Peek(); ok {
			next = 0
			if now := s.elapsed(); top.Deadline > now {
				next = time.Duration(top.Deadline - now)
			}
		}
		wait.Reset(next)
	}
}
