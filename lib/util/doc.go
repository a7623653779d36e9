// Package util provides the small data structures the table, the scheduler
// and the CLI are built on.
//
// The package contains:
//   - mpsc: a lock-free Multi-Producer Single-Consumer queue. The timer scheduler
//     uses it as its submission queue, so Schedule and Cancel never take a lock.
//   - deadlineheap: a min-heap keyed by uint64 ids that also supports removal by
//     id. The timer scheduler keeps one pending callback per id in it.
//   - statistics: summary and distribution statistics, used to report how evenly
//     entries are spread over the buckets of a table.
//   - functions: seed generation for the stock hash functions.
//
// None of the types here know about tables or entries; they are kept generic so
// they can be tested in isolation.
package util
