package table

import (
	"bytes"

	"github.com/ValentinKolb/qtable/lib/util"
	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// --------------------------------------------------------------------------
// Stock key functions
// --------------------------------------------------------------------------

// StringHasher returns a seeded murmur3 hash for string keys. Tables created
// with different seeds spread the same keys differently.
func StringHasher(seed uint64) func(string) uint64 {
	s := uint32(seed ^ seed>>32)
	return func(key string) uint64 {
		return murmur3.Sum64WithSeed([]byte(key), s)
	}
}

// BytesHasher returns an xxhash-based hash for byte-slice keys.
func BytesHasher() func([]byte) uint64 {
	return xxhash.Sum64
}

// Uint64Hasher returns a hash for integer keys. Sequential keys are mixed so
// they do not land in sequential buckets.
func Uint64Hasher() func(uint64) uint64 {
	return util.Mix64
}

// StringEqual compares string keys.
func StringEqual(a, b string) bool { return a == b }

// BytesEqual compares byte-slice keys.
func BytesEqual(a, b []byte) bool { return bytes.Equal(a, b) }

// Uint64Equal compares integer keys.
func Uint64Equal(a, b uint64) bool { return a == b }
