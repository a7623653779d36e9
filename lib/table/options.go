package table

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/qtable/lib/alloc"
	"github.com/ValentinKolb/qtable/lib/sched"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultBuckets      = 1024
	maxBuckets          = 1 << 24
	defaultReclaimDelay = 10 * time.Millisecond // Delay between reclaim attempts for one entry
	defaultRetryDelay   = 50 * time.Millisecond // Delay between lazy-retry passes
)

// --------------------------------------------------------------------------
// Modes
// --------------------------------------------------------------------------

// LockMode selects the granularity of the Lock Set.
type LockMode uint8

const (
	LockPerBucket LockMode = iota // one mutex per bucket
	LockSingle                    // one mutex for the whole table
)

func (m LockMode) String() string {
	switch m {
	case LockPerBucket:
		return "per-bucket"
	case LockSingle:
		return "single"
	default:
		return "unknown"
	}
}

// CounterMode selects where a removed entry's deletion epoch is kept.
type CounterMode uint8

const (
	CounterPerEntry CounterMode = iota // allocate a counter per removed entry, lazy retry on failure
	CounterShared                      // one table-wide counter, never allocates
)

func (m CounterMode) String() string {
	switch m {
	case CounterPerEntry:
		return "per-entry"
	case CounterShared:
		return "shared"
	default:
		return "unknown"
	}
}

// Quiescence selects the test the Reclaimer uses before destroying an entry.
//
// QuiescenceExact registers every open read section. Release scans the
// registry for the newest ticket of the key's bucket, so its cost grows with
// the number of sections open at the same time. QuiescenceCounters keeps
// Lookup and Release to a few atomic operations but may hold entries back
// while unrelated readers are active.
type Quiescence uint8

const (
	QuiescenceExact    Quiescence = iota // counters plus the open-section registry
	QuiescenceCounters                   // completed >= deletion epoch only
)

func (q Quiescence) String() string {
	switch q {
	case QuiescenceExact:
		return "exact"
	case QuiescenceCounters:
		return "counters"
	default:
		return "unknown"
	}
}

// ParseLockMode parses "single" or "per-bucket".
func ParseLockMode(s string) (LockMode, error) {
	switch strings.ToLower(s) {
	case "per-bucket", "bucket", "":
		return LockPerBucket, nil
	case "single", "table":
		return LockSingle, nil
	}
	return LockPerBucket, fmt.Errorf("invalid lock mode %q: must be one of single, per-bucket", s)
}

// ParseCounterMode parses "per-entry" or "shared".
func ParseCounterMode(s string) (CounterMode, error) {
	switch strings.ToLower(s) {
	case "per-entry", "entry", "":
		return CounterPerEntry, nil
	case "shared", "table":
		return CounterShared, nil
	}
	return CounterPerEntry, fmt.Errorf("invalid counter mode %q: must be one of per-entry, shared", s)
}

// ParseQuiescence parses "exact" or "counters".
func ParseQuiescence(s string) (Quiescence, error) {
	switch strings.ToLower(s) {
	case "exact", "":
		return QuiescenceExact, nil
	case "counters":
		return QuiescenceCounters, nil
	}
	return QuiescenceExact, fmt.Errorf("invalid quiescence %q: must be one of exact, counters", s)
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a table at creation. Nothing can be changed afterwards.
type Options struct {
	Name             string          // Label used in logs and metrics
	Buckets          int             // Sizing hint, rounded up to a power of two (0 = default)
	LockMode         LockMode        // Lock Set granularity
	CounterMode      CounterMode     // Reclamation counter placement
	Quiescence       Quiescence      // Reclaimer quiescence test
	NonBlockingAlloc bool            // Insert fails instead of waiting for memory; reclamation counters never wait
	ReclaimDelay     time.Duration   // Delay between reclaim attempts (0 = default)
	RetryDelay       time.Duration   // Delay between lazy-retry passes (0 = default)
	Scheduler        sched.Scheduler // Timer facility (nil = sched.Default())
	Allocator        alloc.Allocator // Allocation accounting (nil = unlimited)
	Metrics          bool            // Maintain a per-table metrics set
}

// DefaultOptions returns the default table options.
func DefaultOptions() *Options {
	return &Options{
		Name:         "table",
		Buckets:      defaultBuckets,
		LockMode:     LockPerBucket,
		CounterMode:  CounterPerEntry,
		Quiescence:   QuiescenceExact,
		ReclaimDelay: defaultReclaimDelay,
		RetryDelay:   defaultRetryDelay,
		Metrics:      true,
	}
}

// normalize fills unset fields with defaults and validates the rest.
// The caller's Options value is not modified.
func (o *Options) normalize() (Options, error) {
	if o == nil {
		o = DefaultOptions()
	}
	n := *o

	if n.Buckets == 0 {
		n.Buckets = defaultBuckets
	}
	if n.Buckets < 0 || n.Buckets > maxBuckets {
		return n, NewError(RetCConfiguration, fmt.Sprintf("bucket count %d out of range (1..%d)", n.Buckets, maxBuckets))
	}
	if n.LockMode > LockSingle {
		return n, NewError(RetCConfiguration, fmt.Sprintf("unknown lock mode %d", n.LockMode))
	}
	if n.CounterMode > CounterShared {
		return n, NewError(RetCConfiguration, fmt.Sprintf("unknown counter mode %d", n.CounterMode))
	}
	if n.Quiescence > QuiescenceCounters {
		return n, NewError(RetCConfiguration, fmt.Sprintf("unknown quiescence %d", n.Quiescence))
	}
	if n.ReclaimDelay < 0 || n.RetryDelay < 0 {
		return n, NewError(RetCConfiguration, "negative delay")
	}

	if n.Name == "" {
		n.Name = "table"
	}
	if n.ReclaimDelay == 0 {
		n.ReclaimDelay = defaultReclaimDelay
	}
	if n.RetryDelay == 0 {
		n.RetryDelay = defaultRetryDelay
	}
	if n.Scheduler == nil {
		n.Scheduler = sched.Default()
	}
	if n.Allocator == nil {
		n.Allocator = alloc.Unlimited()
	}
	n.Buckets = roundUpPow2(n.Buckets)
	return n, nil
}

// roundUpPow2 returns the smallest power of two >= n (n > 0).
func roundUpPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
