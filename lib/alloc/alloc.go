package alloc

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoMemory is returned when an allocation cannot be satisfied.
var ErrNoMemory = errors.New("alloc: out of memory")

// Kind identifies what an allocation is for.
type Kind uint8

const (
	KindTable    Kind = iota // the table record
	KindBuckets              // bucket array (n = bucket count)
	KindLocks                // lock set (n = number of locks)
	KindCounters             // table counters (epoch pair, shared reclamation counter)
	KindEntry                // one table entry
	KindReclaim              // one per-entry reclamation counter
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindBuckets:
		return "buckets"
	case KindLocks:
		return "locks"
	case KindCounters:
		return "counters"
	case KindEntry:
		return "entry"
	case KindReclaim:
		return "reclaim"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Allocator decides whether objects may be created and tracks what is outstanding.
type Allocator interface {
	// Alloc reserves n objects of the given kind. If mayBlock is true and the
	// allocator is at its limit, Alloc waits for capacity; otherwise it fails
	// with ErrNoMemory.
	Alloc(kind Kind, n int, mayBlock bool) error
	// Free releases n objects of the given kind.
	Free(kind Kind, n int)
}

// Tracker is an Allocator with an optional limit on the total number of
// outstanding objects (0 = unlimited), optional per-kind limits, per-kind
// accounting and failure injection.
//
// Reclamation counters (KindReclaim) are not charged against the total limit.
// They are only requested for removed entries, which still hold their entry
// grant until they are reclaimed; a full limit must not keep them from being
// reclaimed. SetKindLimit bounds them separately.
//
// Thread-safety: all methods are thread-safe.
type Tracker struct {
	mu         sync.Mutex
	freed      *sync.Cond
	limit      int
	kindLimits [numKinds]int
	total      int
	inUse      [numKinds]int
	allocs     [numKinds]uint64
	failing    [numKinds]int
}

// NewTracker returns a Tracker that allows at most limit outstanding objects
// in total. A limit <= 0 means unlimited.
func NewTracker(limit int) *Tracker {
	t := &Tracker{limit: limit}
	t.freed = sync.NewCond(&t.mu)
	return t
}

// Unlimited returns a Tracker without a limit.
func Unlimited() *Tracker {
	return NewTracker(0)
}

// SetKindLimit bounds the outstanding objects of one kind. A limit <= 0
// removes the bound.
func (t *Tracker) SetKindLimit(kind Kind, limit int) error {
	if kind >= numKinds {
		return fmt.Errorf("alloc: unknown kind %s", kind)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kindLimits[kind] = max(limit, 0)
	t.freed.Broadcast()
	return nil
}

// charged reports whether kind counts against the total limit.
func charged(kind Kind) bool {
	return kind != KindReclaim
}

// fits reports whether n more objects of kind are within all limits.
// Caller holds t.mu.
func (t *Tracker) fits(kind Kind, n int) bool {
	if l := t.kindLimits[kind]; l > 0 && t.inUse[kind]+n > l {
		return false
	}
	if charged(kind) && t.limit > 0 && t.total-t.inUse[KindReclaim]+n > t.limit {
		return false
	}
	return true
}

// satisfiable reports whether n objects of kind could ever fit.
// Caller holds t.mu.
func (t *Tracker) satisfiable(kind Kind, n int) bool {
	if l := t.kindLimits[kind]; l > 0 && n > l {
		return false
	}
	return !charged(kind) || t.limit <= 0 || n <= t.limit
}

// Alloc implements Allocator.
func (t *Tracker) Alloc(kind Kind, n int, mayBlock bool) error {
	if n < 0 {
		return fmt.Errorf("alloc: negative count %d for %s", n, kind)
	}
	if kind >= numKinds {
		return fmt.Errorf("alloc: unknown kind %s", kind)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failing[kind] > 0 {
		t.failing[kind]--
		return fmt.Errorf("%w (%d x %s, injected)", ErrNoMemory, n, kind)
	}

	for !t.fits(kind, n) {
		if !mayBlock || !t.satisfiable(kind, n) {
			return fmt.Errorf("%w (%d x %s, %d/%d in use)", ErrNoMemory, n, kind, t.total, t.limit)
		}
		t.freed.Wait()
	}

	t.total += n
	t.inUse[kind] += n
	t.allocs[kind]++
	return nil
}

// Free implements Allocator.
func (t *Tracker) Free(kind Kind, n int) {
	if kind >= numKinds {
		panic(fmt.Sprintf("alloc: freeing unknown kind %s", kind))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if n > t.inUse[kind] {
		panic(fmt.Sprintf("alloc: freeing %d x %s but only %d in use", n, kind, t.inUse[kind]))
	}
	t.total -= n
	t.inUse[kind] -= n
	t.freed.Broadcast()
}

// FailNext makes the next count allocations of kind fail. Unknown kinds are
// ignored.
func (t *Tracker) FailNext(kind Kind, count int) {
	if kind >= numKinds {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failing[kind] = count
}

// InUse returns the number of outstanding objects of kind.
func (t *Tracker) InUse(kind Kind) int {
	if kind >= numKinds {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inUse[kind]
}

// Total returns the number of outstanding objects of all kinds.
func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Allocs returns how many successful Alloc calls were made for kind.
func (t *Tracker) Allocs(kind Kind) uint64 {
	if kind >= numKinds {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocs[kind]
}
