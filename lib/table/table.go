package table

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/qtable/lib/alloc"
	"github.com/ValentinKolb/qtable/lib/sched"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("table")

// --------------------------------------------------------------------------
// Lifecycle states
// --------------------------------------------------------------------------

// State is the lifecycle state of a table.
type State uint32

const (
	StateActive    State = iota // accepting all operations
	StatePurging                // Destroy called, waiting for pending reclamations
	StateDestroyed              // torn down, all resources returned
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StatePurging:
		return "purging"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Core table structure
// --------------------------------------------------------------------------

// grant is one allocation held for the lifetime of the table.
type grant struct {
	kind alloc.Kind
	n    int
}

// Table is a concurrent hash table with lock-free lookups and deferred
// reclamation of removed entries. Create it with New.
type Table[K any, V any] struct {
	opts    Options
	hash    func(K) uint64
	equal   func(K, K) bool
	destroy func(V)

	mask     uint64
	buckets  []bucket[K, V]
	locks    *lockSet
	epochs   *epochs
	sections *sections     // nil unless QuiescenceExact
	shared   atomic.Uint64 // CounterShared: highest deletion epoch handed out

	live      atomic.Int64
	pending   atomic.Int64
	reclaimed atomic.Uint64
	deferrals atomic.Uint64

	// lifecycle is held shared by Insert and exclusively by Destroy and the
	// final teardown, so live cannot grow while Destroy inspects it.
	lifecycle sync.RWMutex
	state     atomic.Uint32
	done      chan struct{}
	grants    []grant

	// lazy retry list, guarded by retryLock()
	retryMu    sync.Mutex
	retryHead  *entry[K, V]
	retryLen   int
	retryArmed bool

	metrics *tableMetrics
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// New creates a table. hash and equal are required; destroy may be nil when
// values need no cleanup. A nil opts uses DefaultOptions().
//
// Every table resource is accounted through opts.Allocator without blocking.
// If any allocation fails the ones already made are freed and an error with
// code RetCNoMemory is returned.
//
// Thread-safety: This function is thread-safe.
func New[K any, V any](hash func(K) uint64, equal func(K, K) bool, destroy func(V), opts *Options) (*Table[K, V], error) {
	if hash == nil || equal == nil {
		panic("table: hash and equal functions are required")
	}

	o, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	lockCount := 1
	if o.LockMode == LockPerBucket {
		lockCount = o.Buckets
	}
	counterCount := 2 // started, completed
	if o.CounterMode == CounterShared {
		counterCount++
	}

	wanted := []grant{
		{alloc.KindTable, 1},
		{alloc.KindBuckets, o.Buckets},
		{alloc.KindLocks, lockCount},
		{alloc.KindCounters, counterCount},
	}
	granted := make([]grant, 0, len(wanted))
	for _, g := range wanted {
		if err := o.Allocator.Alloc(g.kind, g.n, false); err != nil {
			for i := len(granted) - 1; i >= 0; i-- {
				o.Allocator.Free(granted[i].kind, granted[i].n)
			}
			plog.Warningf("creating table %q failed allocating %d %s: %v", o.Name, g.n, g.kind, err)
			return nil, NewError(RetCNoMemory, fmt.Sprintf("allocating %d %s: %v", g.n, g.kind, err))
		}
		granted = append(granted, g)
	}

	t := &Table[K, V]{
		opts:    o,
		hash:    hash,
		equal:   equal,
		destroy: destroy,
		mask:    uint64(o.Buckets - 1),
		buckets: make([]bucket[K, V], o.Buckets),
		locks:   newLockSet(o.LockMode, o.Buckets),
		epochs:  &epochs{},
		done:    make(chan struct{}),
		grants:  granted,
	}
	if o.Quiescence == QuiescenceExact {
		t.sections = newSections()
	}
	t.state.Store(uint32(StateActive))
	if o.Metrics {
		t.metrics = newTableMetrics(t)
	}

	plog.Infof("created table %q: %d buckets, lock=%s, counter=%s, quiescence=%s",
		o.Name, o.Buckets, o.LockMode, o.CounterMode, o.Quiescence)
	return t, nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Destroy tears the table down.
//
//   - live entries present: returns ErrBusy and changes nothing
//   - no live entries, removals pending: marks the table purging and returns
//     nil; the last reclamation completes the teardown
//   - nothing live or pending: tears down before returning
//
// Destroy on a table that is already purging or destroyed returns ErrPurging
// or ErrDestroyed. Use Done to wait for the teardown.
//
// Thread-safety: This method is thread-safe.
func (t *Table[K, V]) Destroy() error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if err := stateErr(t.State()); err != nil {
		return err
	}

	if live := t.live.Load(); live > 0 {
		return NewError(RetCBusy, fmt.Sprintf("entries still present: %d", live))
	}
	if pending := t.pending.Load(); pending > 0 {
		t.state.Store(uint32(StatePurging))
		plog.Infof("table %q purging: waiting for %d pending reclamations", t.opts.Name, pending)
		return nil
	}
	t.teardown()
	return nil
}

// Done returns a channel that is closed once the table is torn down.
func (t *Table[K, V]) Done() <-chan struct{} {
	return t.done
}

// finishPurge completes a deferred Destroy once the last pending entry is gone.
func (t *Table[K, V]) finishPurge() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.State() == StatePurging && t.live.Load() == 0 && t.pending.Load() == 0 {
		t.teardown()
	}
}

// teardown returns every table resource to the allocator. Caller holds the
// lifecycle lock exclusively.
func (t *Table[K, V]) teardown() {
	if t.State() == StateDestroyed {
		return
	}
	t.state.Store(uint32(StateDestroyed))
	for i := len(t.grants) - 1; i >= 0; i-- {
		t.opts.Allocator.Free(t.grants[i].kind, t.grants[i].n)
	}
	t.grants = nil
	close(t.done)
	plog.Infof("table %q destroyed (%d entries reclaimed)", t.opts.Name, t.reclaimed.Load())
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// State returns the lifecycle state.
func (t *Table[K, V]) State() State {
	return State(t.state.Load())
}

// Len returns the number of linked entries.
func (t *Table[K, V]) Len() int {
	return int(t.live.Load())
}

// Pending returns the number of removed entries not yet destroyed.
func (t *Table[K, V]) Pending() int {
	return int(t.pending.Load())
}

// Name returns the table's name.
func (t *Table[K, V]) Name() string {
	return t.opts.Name
}

// bucketOf maps a hash to its bucket index.
func (t *Table[K, V]) bucketOf(hash uint64) uint64 {
	return hash & t.mask
}

func (t *Table[K, V]) scheduler() sched.Scheduler {
	return t.opts.Scheduler
}
