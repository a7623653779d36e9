// Package store provides a string to bytes store on top of the concurrent table
// in lib/table, with unified error handling.
//
// The package focuses on:
//   - A unified interface (IStore) for key-value operations
//   - A consumer of the table whose values are pooled buffers, so that reading a
//     value after it has been reclaimed would return another key's bytes
//
// Key Components:
//
//   - IStore Interface: The core abstraction defining operations for interacting
//     with a key-value store. The interface methods return *Error values that
//     carry a RetCode and, where available, the underlying table error.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     and descriptive messages. Table errors stay reachable through errors.Is and
//     errors.As.
//
// Implementations:
//
//   - Local Store (lstore): stores each value in a buffer taken from a sync.Pool.
//     The table's destroy function hands the buffer back to the pool once the
//     Reclaimer has proven that no reader can still copy from it. Get copies the
//     value between Lookup and Release. A key index (xsync.MapOf) serialises
//     writers per key and lets Close delete every key before destroying the table.
//     Available in the "github.com/ValentinKolb/qtable/lib/store/lstore" package.
//
// Conformance:
//
//	The "github.com/ValentinKolb/qtable/lib/store/storetest" package contains a
//	reusable test suite (RunStoreTests) and benchmarks (RunStoreBenchmarks) that
//	every IStore implementation is run against.
package store
