package table

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/qtable/lib/alloc"
)

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Insert links a new entry for key. Returns ErrExists if an entry with an equal
// key is linked, ErrNoMemory if the entry cannot be allocated, and
// ErrPurging or ErrDestroyed once Destroy has been called.
//
// With NonBlockingAlloc unset Insert waits for the allocator when it is at its
// limit.
//
// Thread-safety: This method is thread-safe. It holds the bucket lock (or the
// table lock) while scanning the chain.
func (t *Table[K, V]) Insert(key K, value V) error {
	if err := stateErr(t.State()); err != nil {
		return err
	}

	// allocate before taking the lifecycle lock: a blocked allocation must not
	// hold up Destroy or the final teardown
	if err := t.opts.Allocator.Alloc(alloc.KindEntry, 1, !t.opts.NonBlockingAlloc); err != nil {
		return NewError(RetCNoMemory, fmt.Sprintf("allocating entry: %v", err))
	}

	t.lifecycle.RLock()
	defer t.lifecycle.RUnlock()

	if err := stateErr(t.State()); err != nil {
		t.opts.Allocator.Free(alloc.KindEntry, 1)
		return err
	}

	h := t.hash(key)
	idx := t.bucketOf(h)
	b := &t.buckets[idx]
	e := &entry[K, V]{key: key, value: value, hash: h, table: t}

	mu := t.locks.forBucket(idx)
	mu.Lock()
	if b.find(h, key, t.equal) != nil {
		mu.Unlock()
		t.opts.Allocator.Free(alloc.KindEntry, 1)
		return ErrExists
	}
	b.link(e)
	t.live.Add(1)
	mu.Unlock()

	t.metrics.inserted()
	return nil
}

// Remove unlinks the entry for key and hands it to the Reclaimer. The destroy
// function runs later, once no read section can still see the entry. Returns
// ErrNotFound if no entry is linked for key.
//
// Remove keeps working while the table is purging.
//
// Thread-safety: This method is thread-safe. The bucket lock is released
// before the entry is handed to the Reclaimer.
func (t *Table[K, V]) Remove(key K) error {
	if t.State() == StateDestroyed {
		return ErrDestroyed
	}

	h := t.hash(key)
	idx := t.bucketOf(h)

	mu := t.locks.forBucket(idx)
	mu.Lock()
	e := t.buckets[idx].unlink(h, key, t.equal)
	if e == nil {
		mu.Unlock()
		return ErrNotFound
	}
	e.setState(entryAwaitingCounter)
	// pending first: live+pending never undercounts
	t.pending.Add(1)
	t.live.Add(-1)
	mu.Unlock()

	e.removedAt = time.Now().UnixNano()
	t.metrics.removed()
	t.retire(e)
	return nil
}

// stateErr maps a lifecycle state to the error returned to writers.
func stateErr(s State) error {
	switch s {
	case StatePurging:
		return ErrPurging
	case StateDestroyed:
		return ErrDestroyed
	}
	return nil
}
