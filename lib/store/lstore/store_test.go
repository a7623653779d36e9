package lstore

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/qtable/lib/alloc"
	"github.com/ValentinKolb/qtable/lib/sched"
	"github.com/ValentinKolb/qtable/lib/store"
	"github.com/ValentinKolb/qtable/lib/store/storetest"
	"github.com/ValentinKolb/qtable/lib/table"
)

func testOptions(mutate func(o *table.Options)) *table.Options {
	opts := table.DefaultOptions()
	opts.Name = "lstore-test"
	opts.Buckets = 256
	opts.ReclaimDelay = time.Millisecond
	opts.RetryDelay = 2 * time.Millisecond
	if mutate != nil {
		mutate(opts)
	}
	return opts
}

func factory(mutate func(o *table.Options)) storetest.StoreFactory {
	return func() store.IStore {
		s, err := NewLocalStore(testOptions(mutate))
		if err != nil {
			panic(err)
		}
		return s
	}
}

func TestLocalStore(t *testing.T) {
	storetest.RunStoreTests(t, "per-bucket", factory(nil))
	storetest.RunStoreTests(t, "single-lock", factory(func(o *table.Options) { o.LockMode = table.LockSingle }))
	storetest.RunStoreTests(t, "shared-counter", factory(func(o *table.Options) { o.CounterMode = table.CounterShared }))
}

func BenchmarkLocalStore(b *testing.B) {
	storetest.RunStoreBenchmarks(b, "per-bucket", factory(nil))
	storetest.RunStoreBenchmarks(b, "single-lock", factory(func(o *table.Options) { o.LockMode = table.LockSingle }))
}

func TestCloseReturnsBuffers(t *testing.T) {
	clock := sched.NewManual()
	mem := alloc.Unlimited()
	s, err := newLocalStore(testOptions(func(o *table.Options) {
		o.Scheduler = clock
		o.Allocator = mem
	}))
	if err != nil {
		t.Fatalf("newLocalStore failed: %v", err)
	}

	for _, k := range []string{"a", "b", "c"} {
		if err := s.Set(k, []byte("value-"+k)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	// replacing a value retires the old buffer
	_ = s.Set("a", []byte("again"))
	if s.tbl.Pending() != 1 {
		t.Fatalf("expected replaced value pending, got %d", s.tbl.Pending())
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case <-s.done():
		t.Fatal("table torn down before pending values were reclaimed")
	default:
	}

	for i := 0; i < 10 && clock.Len() > 0; i++ {
		clock.Advance(time.Millisecond)
	}
	select {
	case <-s.done():
	default:
		t.Fatalf("table not torn down: %+v", s.tbl.Info())
	}
	if mem.Total() != 0 {
		t.Fatalf("expected all table resources freed, %d in use", mem.Total())
	}
}

func TestRecycleClearsBuffer(t *testing.T) {
	s, err := newLocalStore(testOptions(func(o *table.Options) { o.Scheduler = sched.NewManual() }))
	if err != nil {
		t.Fatalf("newLocalStore failed: %v", err)
	}
	b := s.newBlob([]byte("secret"))
	data := b.data
	s.recycle(b)
	if len(b.data) != 0 || !bytes.Equal(data[:6], make([]byte, 6)) {
		t.Fatal("recycled buffer still holds the value")
	}
}

func TestOutOfMemory(t *testing.T) {
	mem := alloc.Unlimited()
	s, err := newLocalStore(testOptions(func(o *table.Options) {
		o.Allocator = mem
		o.NonBlockingAlloc = true
		o.Scheduler = sched.NewManual()
	}))
	if err != nil {
		t.Fatalf("newLocalStore failed: %v", err)
	}

	mem.FailNext(alloc.KindEntry, 1)
	err = s.Set("k", []byte("v"))
	var storeErr *store.Error
	if !errors.As(err, &storeErr) || storeErr.Code != store.RetCOutOfMemory {
		t.Fatalf("expected RetCOutOfMemory, got %v", err)
	}
	if !errors.Is(err, table.ErrNoMemory) {
		t.Fatalf("table error not reachable through store error: %v", err)
	}
	if has, _ := s.Has("k"); has {
		t.Fatal("failed Set left the key behind")
	}
	if err := s.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set after transient failure: %v", err)
	}
}

func TestCreateFailure(t *testing.T) {
	mem := alloc.Unlimited()
	mem.FailNext(alloc.KindBuckets, 1)
	_, err := NewLocalStore(testOptions(func(o *table.Options) { o.Allocator = mem }))
	var storeErr *store.Error
	if !errors.As(err, &storeErr) || storeErr.Code != store.RetCOutOfMemory {
		t.Fatalf("expected RetCOutOfMemory, got %v", err)
	}
}
