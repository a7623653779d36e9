package table

import "testing"

func TestStockHashers(t *testing.T) {
	s1, s2 := StringHasher(1), StringHasher(2)
	if s1("key") != s1("key") {
		t.Fatal("string hasher not deterministic")
	}
	if s1("key") == s2("key") {
		t.Fatal("seed has no effect")
	}

	b := BytesHasher()
	if b([]byte("key")) != b([]byte("key")) || b([]byte("a")) == b([]byte("b")) {
		t.Fatal("bytes hasher misbehaves")
	}

	u := Uint64Hasher()
	if u(1)&15 == u(2)&15 && u(2)&15 == u(3)&15 && u(3)&15 == u(4)&15 {
		t.Fatal("sequential keys not spread")
	}

	if !BytesEqual([]byte("x"), []byte("x")) || BytesEqual([]byte("x"), []byte("y")) {
		t.Fatal("BytesEqual misbehaves")
	}
}

func TestBytesKeys(t *testing.T) {
	opts := DefaultOptions()
	opts.Metrics = false
	tbl, err := New[[]byte, string](BytesHasher(), BytesEqual, nil, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := tbl.Insert([]byte("k"), "v"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if v, ok := tbl.Lookup([]byte("k")); !ok || v != "v" {
		t.Fatalf("Lookup = %q, %v", v, ok)
	}
	_ = tbl.Release([]byte("k"))
}
