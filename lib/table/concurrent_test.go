package table

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/qtable/lib/alloc"
	"github.com/ValentinKolb/qtable/lib/sched"
)

type poisonable struct {
	key  uint64
	dead atomic.Bool
}

// TestConcurrentNoUseAfterReclaim hammers a small key space with readers and
// writers on a real timer and checks that no reader ever observes a destroyed
// value, that no key is ever linked twice and that all counts reconcile once the
// table has been drained.
func TestConcurrentNoUseAfterReclaim(t *testing.T) {
	modes := []struct {
		name  string
		opts  func(o *Options)
		limit int
	}{
		{"per-bucket/per-entry", func(o *Options) {}, 0},
		{"single/per-entry", func(o *Options) { o.LockMode = LockSingle }, 0},
		{"per-bucket/shared", func(o *Options) { o.CounterMode = CounterShared }, 0},
		// table(1) + buckets(8) + locks(8) + counters(2) + 8 entries
		{"per-bucket/per-entry/limited", func(o *Options) { o.NonBlockingAlloc = true }, 27},
	}

	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			timer := sched.NewTimer()
			defer timer.Close()
			mem := alloc.NewTracker(mode.limit)

			opts := DefaultOptions()
			opts.Name = "concurrent"
			opts.Buckets = 8
			opts.ReclaimDelay = time.Millisecond
			opts.RetryDelay = 2 * time.Millisecond
			opts.Scheduler = timer
			opts.Allocator = mem
			mode.opts(opts)

			var destroyed atomic.Int64
			tbl, err := New[uint64, *poisonable](Uint64Hasher(), Uint64Equal, func(v *poisonable) {
				if v.dead.Swap(true) {
					t.Errorf("key %d destroyed twice", v.key)
				}
				destroyed.Add(1)
			}, opts)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			const (
				keys       = 32
				readers    = 6
				writers    = 3
				iterations = 3000
			)

			var inserted atomic.Int64
			var violations atomic.Int64
			var wg sync.WaitGroup

			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < iterations; i++ {
						k := uint64((i*7 + w) % keys)
						if i%2 == 0 {
							if tbl.Insert(k, &poisonable{key: k}) == nil {
								inserted.Add(1)
							}
						} else {
							_ = tbl.Remove(k)
						}
						if i%64 == 0 {
							// occasionally starve the counter allocator
							mem.FailNext(alloc.KindReclaim, 1)
						}
					}
				}(w)
			}

			for r := 0; r < readers; r++ {
				wg.Add(1)
				go func(r int) {
					defer wg.Done()
					for i := 0; i < iterations; i++ {
						k := uint64((i + r) % keys)
						v, ok := tbl.Lookup(k)
						if !ok {
							continue
						}
						if v.dead.Load() || v.key != k {
							violations.Add(1)
						}
						runtime.Gosched()
						if v.dead.Load() {
							violations.Add(1)
						}
						if err := tbl.Release(k); err != nil {
							t.Errorf("Release(%d) failed: %v", k, err)
						}
					}
				}(r)
			}
			wg.Wait()

			if n := violations.Load(); n != 0 {
				t.Fatalf("%d reads observed a destroyed value", n)
			}
			if tbl.Len() > keys {
				t.Fatalf("more live entries (%d) than keys (%d)", tbl.Len(), keys)
			}

			// once reclamation has drained, every inserted value is either live or destroyed
			deadline := time.Now().Add(5 * time.Second)
			for tbl.Pending() > 0 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			if tbl.Pending() != 0 {
				t.Fatalf("pending did not converge: %d (backlog %d)", tbl.Pending(), tbl.retryBacklog())
			}
			if got := int64(tbl.Len()) + destroyed.Load(); got != inserted.Load() {
				t.Fatalf("counts do not reconcile: live+destroyed=%d inserted=%d", got, inserted.Load())
			}
			if mem.InUse(alloc.KindEntry) != tbl.Len() {
				t.Fatalf("entry accounting off: %d in use, %d live", mem.InUse(alloc.KindEntry), tbl.Len())
			}

			for k := uint64(0); k < keys; k++ {
				_ = tbl.Remove(k)
			}
			if err := tbl.Destroy(); err != nil {
				t.Fatalf("Destroy failed: %v", err)
			}
			select {
			case <-tbl.Done():
			case <-time.After(5 * time.Second):
				t.Fatalf("teardown did not complete: pending=%d backlog=%d", tbl.Pending(), tbl.retryBacklog())
			}

			if destroyed.Load() != inserted.Load() {
				t.Fatalf("destroyed %d of %d inserted values", destroyed.Load(), inserted.Load())
			}
			if mem.Total() != 0 {
				t.Fatalf("expected all resources freed, %d in use", mem.Total())
			}
		})
	}
}

// TestConcurrentInsertSameKey checks that racing inserts link a key only once.
func TestConcurrentInsertSameKey(t *testing.T) {
	for _, lock := range []LockMode{LockPerBucket, LockSingle} {
		t.Run(lock.String(), func(t *testing.T) {
			opts := DefaultOptions()
			opts.LockMode = lock
			opts.Scheduler = sched.NewManual()
			tbl, err := New[string, int](StringHasher(3), StringEqual, nil, opts)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			var wins atomic.Int64
			var wg sync.WaitGroup
			for g := 0; g < 16; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					if tbl.Insert("same", g) == nil {
						wins.Add(1)
					}
				}(g)
			}
			wg.Wait()

			if wins.Load() != 1 || tbl.Len() != 1 {
				t.Fatalf("expected exactly one successful insert, got %d (live=%d)", wins.Load(), tbl.Len())
			}
		})
	}
}
