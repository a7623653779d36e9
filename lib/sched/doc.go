// Package sched provides the timer facility the table runs its background work
// on: reclaim tasks that re-arm themselves until an entry is quiescent, and the
// lazy-retry task that re-attempts failed reclamation-counter allocations.
//
// The facility is small on purpose. A Scheduler runs a callback once after a
// delay (Schedule) and can forget a callback that has not run yet (Cancel).
// Recurring work re-schedules itself from inside its callback.
//
// Implementations:
//
//   - Timer: a goroutine-backed scheduler. Schedule and Cancel push requests onto
//     a lock-free MPSC queue; the scheduler goroutine owns a deadline heap,
//     waits on the queue and a single time.Timer in one select, and runs due
//     callbacks in deadline order. Callbacks run on the scheduler goroutine, so
//     they must not block for long.
//
//   - Default(): a process-wide Timer, started on first use and never stopped.
//     Tables use it unless they are given their own scheduler.
//
//   - Manual: a scheduler whose clock only moves when the caller says so
//     (Advance, RunPending). Tests use it to drive reclamation step by step.
package sched
