// Package alloc is the allocation accountant used by the table.
//
// The Go runtime owns the memory itself, so an Allocator does not hand out
// bytes. It decides whether an object of a given kind may be created and keeps
// count of what is outstanding. This is what lets a table:
//   - bound the memory it holds (entries plus pending reclamations),
//   - fail creation cleanly and prove that the failure path released everything,
//   - run out of reclamation counters under pressure and fall back to its lazy
//     retry list instead of failing the caller.
//
// Tracker is the stock implementation. A Tracker with limit 0 never refuses an
// allocation and only counts. FailNext injects failures for tests.
//
// Blocking: Alloc with mayBlock=true waits for capacity instead of failing when
// the limit is reached. Injected failures are reported even in blocking mode.
package alloc
