// Package lstore implements store.IStore on a single lib/table Table.
//
// Values live in pooled buffers. The table's destroy function resets a buffer
// and returns it to the pool, so a buffer is reused only after the Reclaimer has
// proven quiescence. Under QuiescenceCounters that proof can be wrong, and a
// Get can then return bytes belonging to a different key.
package lstore
