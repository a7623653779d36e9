package sched

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestManualAdvance(t *testing.T) {
	m := NewManual()
	var order []int
	m.Schedule(30*time.Millisecond, func() { order = append(order, 3) })
	m.Schedule(10*time.Millisecond, func() { order = append(order, 1) })
	m.Schedule(20*time.Millisecond, func() { order = append(order, 2) })

	if n := m.Advance(5 * time.Millisecond); n != 0 {
		t.Fatalf("expected nothing due after 5ms, ran %d", n)
	}
	if n := m.Advance(15 * time.Millisecond); n != 2 {
		t.Fatalf("expected 2 callbacks at 20ms, ran %d", n)
	}
	if m.Now() != 20*time.Millisecond {
		t.Fatalf("expected clock at 20ms, got %v", m.Now())
	}
	if n := m.Advance(time.Second); n != 1 {
		t.Fatalf("expected 1 callback, ran %d", n)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("unexpected order %v", order)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty scheduler, got %d", m.Len())
	}
}

func TestManualRescheduleWithinWindow(t *testing.T) {
	m := NewManual()
	runs := 0
	var tick func()
	tick = func() {
		runs++
		if runs < 5 {
			m.Schedule(10*time.Millisecond, tick)
		}
	}
	m.Schedule(10*time.Millisecond, tick)

	if n := m.Advance(35 * time.Millisecond); n != 3 {
		t.Fatalf("expected 3 runs within 35ms, got %d", n)
	}
	if m.Advance(time.Second); runs != 5 {
		t.Fatalf("expected 5 runs total, got %d", runs)
	}
}

func TestManualRunPending(t *testing.T) {
	m := NewManual()
	runs := 0
	var again func()
	again = func() {
		runs++
		m.Schedule(time.Hour, again)
	}
	m.Schedule(time.Hour, again)
	m.Schedule(2*time.Hour, again)

	if n := m.RunPending(); n != 2 {
		t.Fatalf("expected 2 callbacks, ran %d", n)
	}
	if runs != 2 || m.Len() != 2 {
		t.Fatalf("expected 2 runs and 2 rescheduled, got %d runs and %d queued", runs, m.Len())
	}
	if m.Now() != 0 {
		t.Fatalf("RunPending must not move the clock, now %v", m.Now())
	}
}

func TestManualCancel(t *testing.T) {
	m := NewManual()
	ran := false
	h := m.Schedule(time.Millisecond, func() { ran = true })
	m.Cancel(h)
	m.Cancel(h)
	m.Cancel(Handle(12345))
	if n := m.Advance(time.Second); n != 0 || ran {
		t.Fatal("cancelled callback ran")
	}
}

func TestManualPanicIsContained(t *testing.T) {
	m := NewManual()
	ran := false
	m.Schedule(time.Millisecond, func() { panic("boom") })
	m.Schedule(2*time.Millisecond, func() { ran = true })
	if n := m.Advance(time.Second); n != 2 {
		t.Fatalf("expected 2 callbacks, ran %d", n)
	}
	if !ran {
		t.Fatal("callback after panicking callback did not run")
	}
}

func TestTimerRunsInDeadlineOrder(t *testing.T) {
	s := NewTimer()
	defer s.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)
	for i, d := range []time.Duration{30, 10, 20} {
		i := i
		s.Schedule(d*time.Millisecond, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	waitTimeout(t, &wg, 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 0 {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestTimerCancel(t *testing.T) {
	s := NewTimer()
	defer s.Close()

	var fired atomic.Bool
	h := s.Schedule(50*time.Millisecond, func() { fired.Store(true) })
	s.Cancel(h)

	done := make(chan struct{})
	s.Schedule(100*time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for sentinel callback")
	}
	if fired.Load() {
		t.Fatal("cancelled callback ran")
	}
	if s.Len() != 0 {
		t.Fatalf("expected no queued callbacks, got %d", s.Len())
	}
}

func TestTimerScheduleAfterClose(t *testing.T) {
	s := NewTimer()
	if h := s.Schedule(time.Millisecond, func() {}); h == 0 {
		t.Fatal("expected a handle from a running timer")
	}
	s.Close()

	if h := s.Schedule(0, func() { t.Error("callback ran after Close") }); h != 0 {
		t.Fatalf("expected the zero handle after Close, got %d", h)
	}
	s.Cancel(0)
}

func TestTimerConcurrentSchedule(t *testing.T) {
	s := NewTimer()
	defer s.Close()

	const producers, perProducer = 8, 200
	var ran atomic.Int64
	var wg sync.WaitGroup
	wg.Add(producers * perProducer)
	for p := 0; p < producers; p++ {
		go func(p int) {
			for i := 0; i < perProducer; i++ {
				s.Schedule(time.Duration(i%5)*time.Millisecond, func() {
					ran.Add(1)
					wg.Done()
				})
			}
		}(p)
	}
	waitTimeout(t, &wg, 5*time.Second)
	if ran.Load() != producers*perProducer {
		t.Fatalf("expected %d callbacks, got %d", producers*perProducer, ran.Load())
	}
}

func TestDefaultIsShared(t *testing.T) {
	if Default() != Default() {
		t.Fatal("Default returned different schedulers")
	}
	done := make(chan struct{})
	Default().Schedule(0, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("default scheduler did not run callback")
	}
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timeout waiting for callbacks")
	}
}
