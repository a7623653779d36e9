package table

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// --------------------------------------------------------------------------
// Entries
// --------------------------------------------------------------------------

type entryState uint32

const (
	entryLinked             entryState = iota // reachable from a bucket chain
	entryAwaitingCounter                      // unlinked, reclamation counter not yet obtained
	entryAwaitingQuiescence                   // unlinked, Reclaim Task scheduled
	entryDestroyed                            // destroy function has run
)

// entry is one chain element. key, value and hash never change while the entry
// is reachable. next is written only while the entry is linked and the bucket
// lock is held; once unlinked it keeps pointing into the old chain so a reader
// standing on it can finish its walk.
type entry[K any, V any] struct {
	key   K
	value V
	hash  uint64
	next  atomic.Pointer[entry[K, V]]
	state atomic.Uint32

	// reclamation bookkeeping, owned by whoever moved the entry out of linked
	epoch      uint64       // deletion epoch
	hasCounter bool         // a per-entry counter was allocated
	removedAt  int64        // unix nanos, for the reclaim latency histogram
	retryNext  *entry[K, V] // lazy retry list link
	table      *Table[K, V] // owning table
	task       func()       // Reclaim Task closure, built once
}

func (e *entry[K, V]) setState(s entryState) { e.state.Store(uint32(s)) }

func (e *entry[K, V]) getState() entryState { return entryState(e.state.Load()) }

// --------------------------------------------------------------------------
// Bucket Store
// --------------------------------------------------------------------------

type bucket[K any, V any] struct {
	head atomic.Pointer[entry[K, V]]
}

// find walks the chain without locking.
func (b *bucket[K, V]) find(hash uint64, key K, equal func(K, K) bool) *entry[K, V] {
	for e := b.head.Load(); e != nil; e = e.next.Load() {
		if e.hash == hash && equal(e.key, key) {
			return e
		}
	}
	return nil
}

// link pushes e at the head of the chain. Caller holds the bucket lock.
func (b *bucket[K, V]) link(e *entry[K, V]) {
	e.next.Store(b.head.Load())
	b.head.Store(e)
}

// unlink removes the matching entry with a single store on its predecessor's
// link and returns it, or nil. Caller holds the bucket lock.
func (b *bucket[K, V]) unlink(hash uint64, key K, equal func(K, K) bool) *entry[K, V] {
	link := &b.head
	for e := link.Load(); e != nil; e = link.Load() {
		if e.hash == hash && equal(e.key, key) {
			link.Store(e.next.Load())
			return e
		}
		link = &e.next
	}
	return nil
}

// length counts the entries of the chain without locking.
func (b *bucket[K, V]) length() int {
	n := 0
	for e := b.head.Load(); e != nil; e = e.next.Load() {
		n++
	}
	return n
}

// --------------------------------------------------------------------------
// Lock Set
// --------------------------------------------------------------------------

type paddedMutex struct {
	sync.Mutex
	_ cpu.CacheLinePad
}

// lockSet is either a single table lock or one lock per bucket.
type lockSet struct {
	locks []paddedMutex
}

func newLockSet(mode LockMode, buckets int) *lockSet {
	n := 1
	if mode == LockPerBucket {
		n = buckets
	}
	return &lockSet{locks: make([]paddedMutex, n)}
}

// forBucket returns the lock guarding bucket idx.
func (l *lockSet) forBucket(idx uint64) *sync.Mutex {
	if len(l.locks) == 1 {
		return &l.locks[0].Mutex
	}
	return &l.locks[idx].Mutex
}

// single reports whether all buckets share one lock.
func (l *lockSet) single() bool { return len(l.locks) == 1 }

func (l *lockSet) count() int { return len(l.locks) }
