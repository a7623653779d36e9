package util

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

// TestMPSCBasic pushes and receives a handful of items in order
func TestMPSCBasic(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	for i := 0; i < 10; i++ {
		v := i
		if !q.Push(&v) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case v := <-q.Recv():
			if *v != i {
				t.Errorf("Expected %d, got %d", i, *v)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	select {
	case v := <-q.Recv():
		t.Errorf("Queue should be empty, got %d", *v)
	case <-time.After(10 * time.Millisecond):
	}
}

// TestMPSCNil rejects nil values
func TestMPSCNil(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	if q.Push(nil) {
		t.Error("Push(nil) should return false")
	}
}

// TestMPSCConcurrentProducers checks that no item is lost or duplicated
func TestMPSCConcurrentProducers(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	const producers = 8
	const perProducer = 2000
	total := producers * perProducer

	seen := make([]bool, total)
	done := make(chan int)

	go func() {
		count := 0
		for count < total {
			select {
			case v := <-q.Recv():
				if seen[*v] {
					t.Errorf("Duplicate item %d", *v)
				}
				seen[*v] = true
				count++
			case <-time.After(5 * time.Second):
				done <- count
				return
			}
		}
		done <- count
	}()

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				v := p*perProducer + i
				q.Push(&v)
				if i%128 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}
	wg.Wait()

	if got := <-done; got != total {
		t.Fatalf("Expected %d items, got %d", total, got)
	}
}

// TestMPSCCloseDrains delivers already pushed items after Close and then closes the channel
func TestMPSCCloseDrains(t *testing.T) {
	q := NewLockFreeMPSC[int]()

	for i := 0; i < 5; i++ {
		v := i
		q.Push(&v)
	}
	q.Close()

	late := 100
	if q.Push(&late) {
		t.Error("Push after Close should fail")
	}
	if !q.IsClosed() {
		t.Error("IsClosed should report true")
	}

	for i := 0; i < 5; i++ {
		select {
		case v := <-q.Recv():
			if *v != i {
				t.Errorf("Expected %d, got %d", i, *v)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d after close", i)
		}
	}

	select {
	case _, ok := <-q.Recv():
		if ok {
			t.Error("Channel should be closed")
		}
	case <-time.After(time.Second):
		t.Error("Channel was not closed after drain")
	}
}

// TestMPSCWakeup pushes after the consumer has parked, many times over
func TestMPSCWakeup(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	for i := 0; i < 200; i++ {
		v := i
		q.Push(&v)
		select {
		case got := <-q.Recv():
			if *got != i {
				t.Fatalf("Expected %d, got %d", i, *got)
			}
		case <-time.After(time.Second):
			t.Fatalf("Consumer missed wakeup for item %d", i)
		}
		if i%20 == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

func BenchmarkMPSCPush(b *testing.B) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()
	go func() {
		for range q.Recv() {
		}
	}()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			v := i
			q.Push(&v)
			i++
		}
	})
}
