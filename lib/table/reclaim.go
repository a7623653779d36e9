package table

import (
	"sync"
	"time"

	"github.com/ValentinKolb/qtable/lib/alloc"
)

// --------------------------------------------------------------------------
// Reclaimer
// --------------------------------------------------------------------------

// retire gives a freshly unlinked entry its reclamation counter and schedules
// its Reclaim Task. If the counter cannot be allocated the entry goes to the
// lazy retry list instead; the caller never sees that failure.
func (t *Table[K, V]) retire(e *entry[K, V]) {
	e.task = func() { e.table.reclaim(e) }
	if !t.attachCounter(e) {
		t.pushRetry(e)
		return
	}
	t.schedule(t.opts.ReclaimDelay, e.task)
}

// schedule hands fn to the scheduler and reports a dropped callback. A dropped
// Reclaim Task leaves its entry pending for good.
func (t *Table[K, V]) schedule(delay time.Duration, fn func()) {
	if t.scheduler().Schedule(delay, fn) == 0 {
		plog.Errorf("table %q: scheduler dropped a reclamation callback, %d entries pending",
			t.opts.Name, t.pending.Load())
	}
}

// attachCounter records the deletion epoch of e. In per-entry mode this needs
// a counter from the allocator; the request never waits, the lazy retry list
// covers a refusal.
func (t *Table[K, V]) attachCounter(e *entry[K, V]) bool {
	switch t.opts.CounterMode {
	case CounterShared:
		e.epoch = t.raiseShared(t.epochs.started.Load())
	default:
		if err := t.opts.Allocator.Alloc(alloc.KindReclaim, 1, false); err != nil {
			return false
		}
		e.hasCounter = true
		e.epoch = t.epochs.started.Load()
	}
	e.setState(entryAwaitingQuiescence)
	return true
}

// raiseShared lifts the shared counter to at least epoch and returns its value.
func (t *Table[K, V]) raiseShared(epoch uint64) uint64 {
	for {
		cur := t.shared.Load()
		if cur >= epoch {
			return cur
		}
		if t.shared.CompareAndSwap(cur, epoch) {
			return epoch
		}
	}
}

// quiescent reports whether no read section that could have seen an entry
// removed at epoch is still open.
func (t *Table[K, V]) quiescent(epoch uint64) bool {
	if t.epochs.completed.Load() < epoch {
		return false
	}
	if t.sections != nil && !t.sections.quiescentAt(epoch) {
		return false
	}
	return true
}

// reclaim is the Reclaim Task. It destroys e if it is quiescent and otherwise
// schedules itself again.
func (t *Table[K, V]) reclaim(e *entry[K, V]) {
	if !t.quiescent(e.epoch) {
		t.deferrals.Add(1)
		t.metrics.reclaimDeferred()
		t.schedule(t.opts.ReclaimDelay, e.task)
		return
	}

	e.setState(entryDestroyed)
	// the entry counts as reclaimed even if destroy panics
	defer t.release(e)
	if t.destroy != nil {
		t.destroy(e.value)
	}
}

// release returns the resources of a destroyed entry and completes a deferred
// Destroy when it was the last pending one.
func (t *Table[K, V]) release(e *entry[K, V]) {
	if e.hasCounter {
		t.opts.Allocator.Free(alloc.KindReclaim, 1)
		e.hasCounter = false
	}
	t.opts.Allocator.Free(alloc.KindEntry, 1)
	t.reclaimed.Add(1)
	t.metrics.reclaimedAfter(time.Duration(time.Now().UnixNano() - e.removedAt))

	// finishPurge serialises with Destroy on the lifecycle lock, so a Destroy
	// racing this decrement either sees zero pending or leaves purging for us.
	if t.pending.Add(-1) == 0 {
		t.finishPurge()
	}
}

// --------------------------------------------------------------------------
// Lazy retry list
// --------------------------------------------------------------------------

// retryLock returns the lock guarding the lazy retry list: the table lock in
// single-lock mode, a dedicated mutex otherwise.
func (t *Table[K, V]) retryLock() *sync.Mutex {
	if t.locks.single() {
		return t.locks.forBucket(0)
	}
	return &t.retryMu
}

// pushRetry parks e on the lazy retry list and arms the retry task if it is
// not armed yet. Caller must not hold retryLock().
func (t *Table[K, V]) pushRetry(e *entry[K, V]) {
	mu := t.retryLock()
	mu.Lock()
	e.retryNext = t.retryHead
	t.retryHead = e
	t.retryLen++
	arm := !t.retryArmed
	t.retryArmed = true
	backlog := t.retryLen
	mu.Unlock()

	t.metrics.retryQueued()
	if arm {
		plog.Warningf("table %q: reclamation counter unavailable, %d entries on retry list", t.opts.Name, backlog)
		t.schedule(t.opts.RetryDelay, t.drainRetry)
	}
}

// drainRetry is the lazy-retry task. It detaches the list, retries the counter
// allocation once for every queued entry, schedules the Reclaim Task of each
// entry that got one and puts the rest back. It re-arms itself while the list
// is non-empty.
func (t *Table[K, V]) drainRetry() {
	mu := t.retryLock()
	mu.Lock()
	list := t.retryHead
	t.retryHead = nil
	t.retryLen = 0
	mu.Unlock()

	var failed, failedTail *entry[K, V]
	failedLen := 0
	for e := list; e != nil; {
		next := e.retryNext
		e.retryNext = nil
		if t.attachCounter(e) {
			t.schedule(t.opts.ReclaimDelay, e.task)
		} else {
			if failedTail == nil {
				failedTail = e
			}
			e.retryNext = failed
			failed = e
			failedLen++
		}
		e = next
	}

	mu.Lock()
	if failed != nil {
		failedTail.retryNext = t.retryHead
		t.retryHead = failed
		t.retryLen += failedLen
	}
	rearm := t.retryHead != nil
	t.retryArmed = rearm
	mu.Unlock()

	if rearm {
		t.schedule(t.opts.RetryDelay, t.drainRetry)
	}
}

// retryBacklog returns the length of the lazy retry list.
func (t *Table[K, V]) retryBacklog() int {
	mu := t.retryLock()
	mu.Lock()
	defer mu.Unlock()
	return t.retryLen
}
