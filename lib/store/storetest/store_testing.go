package storetest

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/qtable/lib/store"
)

// StoreFactory is a function that creates a new instance of an IStore implementation
type StoreFactory func() store.IStore

// RunStoreTests runs the conformance suite against an IStore implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("SetIfUnset", func(t *testing.T) {
			testSetIfUnset(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("CollisionHandling", func(t *testing.T) {
			testCollisionHandling(t, factory())
		})

		t.Run("ValueIntegrity", func(t *testing.T) {
			testValueIntegrity(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func closeStore(t testing.TB, s store.IStore) {
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func mustSet(t testing.TB, s store.IStore, key string, value []byte) {
	if err := s.Set(key, value); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}

// valueFor returns a value that encodes its key, so a value read under the
// wrong key (or from a recycled buffer) is detectable.
func valueFor(key string, round int) []byte {
	return []byte(fmt.Sprintf("%s|%d|%s", key, round, key))
}

func checkValueFor(key string, value []byte) bool {
	parts := bytes.Split(value, []byte("|"))
	return len(parts) == 3 && string(parts[0]) == key && string(parts[2]) == key
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, s store.IStore) {
	defer closeStore(t, s)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustSet(t, s, testKey, testValue1)

	result, exists, err := s.Get(testKey)
	if err != nil || !exists {
		t.Errorf("Expected key %s to exist after Set (err=%v)", testKey, err)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	mustSet(t, s, testKey, testValue2)

	result, exists, _ = s.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists, _ = s.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _, _ := s.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _, _ := s.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	input := []byte("input-value")
	mustSet(t, s, testKey, input)
	input[0] = 'X'
	result, _, _ = s.Get(testKey)
	if !bytes.Equal(result, []byte("input-value")) {
		t.Errorf("Set should copy its input, got %s", result)
	}
}

func testSetIfUnset(t *testing.T, s store.IStore) {
	defer closeStore(t, s)

	if err := s.SetIfUnset("key", []byte("first")); err != nil {
		t.Fatalf("SetIfUnset failed: %v", err)
	}
	if err := s.SetIfUnset("key", []byte("second")); err != nil {
		t.Fatalf("SetIfUnset on existing key returned error: %v", err)
	}

	result, _, _ := s.Get("key")
	if !bytes.Equal(result, []byte("first")) {
		t.Errorf("SetIfUnset overwrote existing value: got %s", result)
	}

	_ = s.Delete("key")
	if err := s.SetIfUnset("key", []byte("third")); err != nil {
		t.Fatalf("SetIfUnset after delete failed: %v", err)
	}
	result, _, _ = s.Get("key")
	if !bytes.Equal(result, []byte("third")) {
		t.Errorf("Expected value third after delete, got %s", result)
	}
}

func testDelete(t *testing.T, s store.IStore) {
	defer closeStore(t, s)

	mustSet(t, s, "delete-key", []byte("value"))
	if err := s.Delete("delete-key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, exists, _ := s.Get("delete-key"); exists {
		t.Errorf("Key should not exist after Delete")
	}
	if err := s.Delete("delete-key"); err != nil {
		t.Errorf("Deleting a missing key should not fail: %v", err)
	}
	if err := s.Delete("never-set"); err != nil {
		t.Errorf("Deleting an unknown key should not fail: %v", err)
	}
}

func testHas(t *testing.T, s store.IStore) {
	defer closeStore(t, s)

	mustSet(t, s, "has-key", []byte("value"))

	if has, err := s.Has("has-key"); err != nil || !has {
		t.Errorf("Has should return true for existing key (err=%v)", err)
	}
	if has, _ := s.Has("no-such-key"); has {
		t.Errorf("Has should return false for missing key")
	}

	_ = s.Delete("has-key")
	if has, _ := s.Has("has-key"); has {
		t.Errorf("Has should return false after Delete")
	}
}

func testEdgeCases(t *testing.T, s store.IStore) {
	defer closeStore(t, s)

	emptyKeyValue := []byte("value for empty key")
	mustSet(t, s, "", emptyKeyValue)
	if result, exists, _ := s.Get(""); !exists || !bytes.Equal(result, emptyKeyValue) {
		t.Errorf("Empty key not stored correctly")
	}

	mustSet(t, s, "nil-value-key", nil)
	if result, exists, _ := s.Get("nil-value-key"); !exists || len(result) != 0 {
		t.Errorf("Nil value not stored correctly: exists=%v value=%v", exists, result)
	}

	largeKey := string(make([]byte, 1000))
	mustSet(t, s, largeKey, []byte("value for large key"))
	if result, exists, _ := s.Get(largeKey); !exists || !bytes.Equal(result, []byte("value for large key")) {
		t.Errorf("Large key not stored correctly")
	}

	largeValue := make([]byte, 4*1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}
	mustSet(t, s, "large-value-key", largeValue)
	result, exists, _ := s.Get("large-value-key")
	if !exists || !bytes.Equal(result, largeValue) {
		t.Errorf("Large value mismatch: exists=%v len=%d", exists, len(result))
	}
}

func testCollisionHandling(t *testing.T, s store.IStore) {
	defer closeStore(t, s)

	prefix := "collision-test-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		mustSet(t, s, fmt.Sprintf("%s%d", prefix, i), []byte(fmt.Sprintf("value-%d", i)))
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		actualValue, exists, _ := s.Get(key)
		if !exists {
			t.Errorf("Key %s not found", key)
			continue
		}
		if expected := []byte(fmt.Sprintf("value-%d", i)); !bytes.Equal(actualValue, expected) {
			t.Errorf("Value for key %s does not match: expected %s, got %s", key, expected, actualValue)
		}
	}

	for i := 0; i < numKeys; i += 2 {
		_ = s.Delete(fmt.Sprintf("%s%d", prefix, i))
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		_, exists, _ := s.Get(key)
		if i%2 == 0 && exists {
			t.Errorf("Key %s should be deleted", key)
		} else if i%2 == 1 && !exists {
			t.Errorf("Key %s should still exist", key)
		}
	}

	info, err := s.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Live != int64(numKeys/2) {
		t.Errorf("Expected %d live entries, got %d", numKeys/2, info.Live)
	}
}

// testValueIntegrity overwrites and deletes a small set of keys while readers
// check that every value they get belongs to the key they asked for. A value
// buffer recycled while a reader still copies from it shows up here.
func testValueIntegrity(t *testing.T, s store.IStore) {
	defer closeStore(t, s)

	const (
		numKeys    = 16
		numReaders = 6
		numWriters = 3
		rounds     = 2000
	)
	keys := make([]string, numKeys)
	for i := range keys {
		keys[i] = fmt.Sprintf("integrity-%d", i)
		mustSet(t, s, keys[i], valueFor(keys[i], 0))
	}

	var corrupt int32
	var wg sync.WaitGroup

	for w := 0; w < numWriters; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 1; r <= rounds; r++ {
				key := keys[(r*3+w)%numKeys]
				if r%5 == 0 {
					_ = s.Delete(key)
				} else {
					_ = s.Set(key, valueFor(key, r))
				}
			}
		}(w)
	}

	for rd := 0; rd < numReaders; rd++ {
		wg.Add(1)
		go func(rd int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				key := keys[(r+rd)%numKeys]
				value, exists, err := s.Get(key)
				if err != nil {
					t.Errorf("Get(%s) failed: %v", key, err)
					return
				}
				if exists && !checkValueFor(key, value) {
					atomic.AddInt32(&corrupt, 1)
				}
			}
		}(rd)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&corrupt); n > 0 {
		t.Fatalf("%d reads returned a value that belongs to another key", n)
	}
}

func testRealisticUsage(t *testing.T, s store.IStore) {
	defer closeStore(t, s)

	type operation struct {
		op    string
		key   string
		value []byte
	}

	numOperations := 10_000
	operations := make([]operation, numOperations)

	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4, 5, 6:
			op = "set"
		case 7, 8:
			op = "get"
		case 9:
			op = "delete"
		}

		var key string
		if i%5 == 0 {
			key = fmt.Sprintf("hot-key-%d", i%50)
		} else {
			key = fmt.Sprintf("key-%d", i)
		}

		var value []byte
		if op == "set" {
			valueSize := 64
			if i%10 == 0 {
				valueSize = 1024
			}
			value = make([]byte, valueSize)
			for j := 0; j < valueSize; j++ {
				value[j] = byte((i + j) % 256)
			}
		}

		operations[i] = operation{op, key, value}
	}

	numWorkers := 8
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	var errorCount int32
	opsPerWorker := numOperations / numWorkers

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			start := workerId * opsPerWorker
			end := start + opsPerWorker

			for i := start; i < end; i++ {
				op := operations[i]
				var err error
				switch op.op {
				case "set":
					err = s.Set(op.key, op.value)
				case "get":
					_, _, err = s.Get(op.key)
				case "delete":
					err = s.Delete(op.key)
				}
				if err != nil {
					atomic.AddInt32(&errorCount, 1)
				}
			}
		}(w)
	}

	wg.Wait()

	if n := atomic.LoadInt32(&errorCount); n > 0 {
		t.Fatalf("Test had %d errors during parallel operations", n)
	}

	// every non-hot key that was only set once must hold its value
	for i, op := range operations {
		if op.op != "set" || i%5 == 0 {
			continue
		}
		value, exists, _ := s.Get(op.key)
		if !exists || !bytes.Equal(value, op.value) {
			t.Errorf("Key %s lost its value", op.key)
		}
	}
}

func testClose(t *testing.T, s store.IStore) {
	for i := 0; i < 100; i++ {
		mustSet(t, s, fmt.Sprintf("close-%d", i), []byte("value"))
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var storeErr *store.Error
	if err := s.Set("after-close", []byte("x")); !errors.As(err, &storeErr) || storeErr.Code != store.RetCInvalidOperation {
		t.Errorf("Expected RetCInvalidOperation after Close, got %v", err)
	}
	if err := s.Close(); err == nil {
		t.Errorf("Second Close should fail")
	}
	if _, exists, _ := s.Get("close-1"); exists {
		t.Errorf("Closed store still returns values")
	}
}
