// Package table implements a concurrent keyed hash table with lock-free lookups
// and deferred, quiescence-proven destruction of removed entries.
//
// # Overview
//
// Readers never take a lock. Lookup walks a bucket chain of atomically loaded
// next pointers and hands out the stored value; the caller keeps using that value
// until it calls Release for the same key. Writers (Insert, Remove) serialise on a
// Lock Set: one mutex for the whole table or one per bucket, chosen at creation.
//
// Because a reader may still hold a value that a concurrent Remove has just
// unlinked, Remove does not destroy the entry. It records the entry's deletion
// epoch and hands it to the Reclaimer, which calls the user's destroy function
// only once no read section that could have seen the entry is still open.
//
// # Read sections and epochs
//
// Every Lookup opens a read section by incrementing the table's started counter.
// A Lookup that finds nothing closes its own section at once; a hit leaves the
// section open until Release. Closing increments the completed counter. The
// deletion epoch of an entry is the value of started right after it was unlinked.
//
// Two quiescence tests are available (Options.Quiescence):
//
//   - QuiescenceExact (default): each section also registers its ticket (its
//     started value) together with its bucket. An entry is reclaimed only when
//     completed has reached its deletion epoch, no section is between taking a
//     ticket and registering it, and no registered ticket is at or below the
//     deletion epoch. Release(key) retires the newest open ticket of the key's
//     bucket, never one older than the caller's own, so the registry always
//     over-approximates the sections that can still see a removed entry.
//
//   - QuiescenceCounters: only completed >= deletion epoch is checked. This is
//     cheaper but can be satisfied by sections that started after the removal
//     while an older one is still running.
//
// # Reclamation counters
//
// With CounterPerEntry every removed entry allocates its own reclamation counter
// from the Allocator. If that allocation fails the entry is parked on the lazy
// retry list and a single retry task re-attempts the allocation later; the
// failure never reaches the caller. With CounterShared the table keeps one
// counter holding the highest deletion epoch handed out so far; entries read it
// instead of allocating, which never fails but reclaims later.
//
// # Lifecycle
//
// A table is active after New. Destroy refuses while entries are live
// (ErrBusy). With no live entries but removals still pending it moves the table
// to purging and returns; the reclamation that drains the last pending entry
// finishes the teardown. With nothing pending it tears down at once. Done() is
// closed when teardown has completed and every table resource has been returned
// to the Allocator.
//
// # Thread-safety
//
// All methods are safe for concurrent use. Every successful Lookup must be
// paired with exactly one Release of the same key; a missing Release stalls
// reclamation for the whole table.
package table
