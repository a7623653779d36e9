package storetest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/qtable/lib/store"
)

// RunStoreBenchmarks runs all benchmarks for an IStore implementation
func RunStoreBenchmarks(b *testing.B, name string, factory StoreFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, factory())
		})

		b.Run("SetExisting", func(b *testing.B) {
			benchmarkSetExisting(b, factory())
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})

		b.Run("Has", func(b *testing.B) {
			benchmarkHas(b, factory())
		})

		b.Run("Has(not)", func(b *testing.B) {
			benchmarkHasNot(b, factory())
		})

		b.Run("Delete", func(b *testing.B) {
			benchmarkDelete(b, factory())
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory())
		})
	})
}

// prepare fills s with n keys named test-key-<i>.
func prepare(b *testing.B, s store.IStore, n int) []string {
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("test-key-%d", i)
		if err := s.Set(keys[i], []byte(fmt.Sprintf("test-value-%d", i))); err != nil {
			b.Fatalf("Set failed: %v", err)
		}
	}
	return keys
}

func benchmarkKeys(b *testing.B) int {
	if b.N < 100_000 {
		return b.N + 1
	}
	return 100_000
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Set operation
func benchmarkSet(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})

	var seq int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := atomic.AddInt64(&seq, 1)
			_ = s.Set(fmt.Sprintf("test-key-%d", i), []byte(fmt.Sprintf("test-value-%d", i)))
		}
	})
}

// Benchmark for Set operation with existing keys
func benchmarkSetExisting(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})

	keys := prepare(b, s, benchmarkKeys(b))

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_ = s.Set(keys[counter%len(keys)], []byte(fmt.Sprintf("test-value-%d", counter)))
			counter++
		}
	})
}

// Benchmark for Get operation
func benchmarkGet(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})

	keys := prepare(b, s, benchmarkKeys(b))

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _, _ = s.Get(keys[counter%len(keys)])
			counter++
		}
	})
}

// Benchmark for Has operation
func benchmarkHas(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})

	keys := prepare(b, s, benchmarkKeys(b))

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _ = s.Has(keys[counter%len(keys)])
			counter++
		}
	})
}

// Benchmark for Has operation on missing keys
func benchmarkHasNot(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _ = s.Has(fmt.Sprintf("missing-key-%d", counter))
			counter++
		}
	})
}

// Benchmark for Delete operation
func benchmarkDelete(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})

	keys := prepare(b, s, b.N+1)

	var seq int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := atomic.AddInt64(&seq, 1) - 1
			_ = s.Delete(keys[int(i)%len(keys)])
		}
	})
}

// Benchmark for a mix of operations on pre-populated and new keys
func benchmarkMixedUsage(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})

	keys := prepare(b, s, benchmarkKeys(b))

	// Counter for atomic access
	var counter int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		// Local counter for each goroutine
		localCounter := 0

		for pb.Next() {
			idx := int(atomic.AddInt64(&counter, 1)-1) % len(keys)

			// For every 10th operation, use a completely new key
			var key string
			if localCounter%10 == 0 {
				key = fmt.Sprintf("new-key-%d", localCounter)
			} else {
				key = keys[idx]
			}

			switch localCounter % 4 {
			case 0:
				_, _, _ = s.Get(key)
			case 1:
				_ = s.Set(key, []byte(fmt.Sprintf("mixed-value-%d", localCounter)))
			case 2:
				_ = s.Delete(key)
			case 3:
				_, _ = s.Has(key)
			}

			localCounter++
		}
	})
}
