package table

// --------------------------------------------------------------------------
// Read sections: Lookup / Release
// --------------------------------------------------------------------------

// Lookup returns the value stored for key. It never takes a lock.
//
// A hit leaves a read section open: the value stays valid, even if the key is
// removed concurrently, until the caller calls Release(key). A miss closes its
// section before returning and must not be released.
//
// Thread-safety: This method is thread-safe and lock-free.
func (t *Table[K, V]) Lookup(key K) (V, bool) {
	h := t.hash(key)
	idx := t.bucketOf(h)

	var ticket uint64
	if t.sections != nil {
		ticket = t.sections.enter(t.epochs, uint32(idx))
	} else {
		t.epochs.started.Add(1)
	}

	if e := t.buckets[idx].find(h, key, t.equal); e != nil {
		t.metrics.lookupHit()
		return e.value, true
	}

	if t.sections != nil {
		t.sections.leave(ticket, uint32(idx))
	}
	t.epochs.completed.Add(1)
	t.metrics.lookupMiss()

	var zero V
	return zero, false
}

// Release closes the read section opened by a successful Lookup of key.
// Returns ErrNoSection if there is no open section to close.
//
// Thread-safety: This method is thread-safe and lock-free.
func (t *Table[K, V]) Release(key K) error {
	if t.sections == nil {
		if !t.epochs.closeCounted() {
			return ErrNoSection
		}
		return nil
	}

	idx := t.bucketOf(t.hash(key))
	if !t.sections.retireNewest(uint32(idx)) {
		return ErrNoSection
	}
	t.epochs.completed.Add(1)
	return nil
}

// With runs fn on the value stored for key inside a read section and releases
// the section afterwards. Returns false if key is not present.
func (t *Table[K, V]) With(key K, fn func(V)) bool {
	v, ok := t.Lookup(key)
	if !ok {
		return false
	}
	defer func() {
		if err := t.Release(key); err != nil {
			plog.Errorf("table %q: closing read section: %v", t.opts.Name, err)
		}
	}()
	fn(v)
	return true
}
