// Package storetest contains a reusable conformance suite for store.IStore
// implementations.
//
// Usage from an implementation's test file:
//
//	func TestStore(t *testing.T) {
//		storetest.RunStoreTests(t, "lstore", func() store.IStore { ... })
//	}
//
//	func BenchmarkStore(b *testing.B) {
//		storetest.RunStoreBenchmarks(b, "lstore", func() store.IStore { ... })
//	}
//
// Every test and benchmark gets a fresh store from the factory and closes it
// when done.
package storetest
