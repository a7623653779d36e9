package lstore

import (
	"errors"
	"sync"

	"github.com/ValentinKolb/qtable/lib/store"
	"github.com/ValentinKolb/qtable/lib/table"
	"github.com/ValentinKolb/qtable/lib/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var plog = logger.GetLogger("store")

// blob is one stored value. Its buffer comes from the store's pool.
type blob struct {
	data []byte
}

type storeImpl struct {
	tbl  *table.Table[string, *blob]
	keys *xsync.MapOf[string, struct{}] // keys believed to be linked
	pool sync.Pool

	// mu is held shared by writers and exclusively by Close
	mu     sync.RWMutex
	closed bool
}

// NewLocalStore creates a new local store backed by a table created with opts
// (nil = table.DefaultOptions()). The table hashes keys with a random seed.
func NewLocalStore(opts *table.Options) (store.IStore, error) {
	s, err := newLocalStore(opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newLocalStore(opts *table.Options) (*storeImpl, error) {
	s := &storeImpl{
		keys: xsync.NewMapOf[string, struct{}](),
	}
	s.pool.New = func() any { return &blob{} }

	if opts == nil {
		opts = table.DefaultOptions()
		opts.Name = "store"
	}
	tbl, err := table.New[string, *blob](table.StringHasher(util.GenerateSeed()), table.StringEqual, s.recycle, opts)
	if err != nil {
		return nil, toStoreError("creating table", err)
	}
	s.tbl = tbl
	return s, nil
}

// newBlob copies value into a pooled buffer.
func (s *storeImpl) newBlob(value []byte) *blob {
	b := s.pool.Get().(*blob)
	b.data = append(b.data[:0], value...)
	return b
}

// recycle is the table's destroy function.
func (s *storeImpl) recycle(b *blob) {
	clear(b.data)
	b.data = b.data[:0]
	s.pool.Put(b)
}

// toStoreError maps table errors to store error codes.
func toStoreError(msg string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, table.ErrNoMemory):
		return store.WrapError(store.RetCOutOfMemory, msg, err)
	case errors.Is(err, table.ErrDestroyed):
		return store.WrapError(store.RetCInvalidOperation, msg, err)
	default:
		return store.WrapError(store.RetCInternalError, msg, err)
	}
}

// writeLock takes the shared side of mu and fails if the store is closed.
func (s *storeImpl) writeLock() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return store.NewError(store.RetCInvalidOperation, "store is closed")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if err := s.writeLock(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	b := s.newBlob(value)
	var opErr error
	s.keys.Compute(key, func(_ struct{}, loaded bool) (struct{}, bool) {
		if loaded {
			if err := s.tbl.Remove(key); err != nil && !errors.Is(err, table.ErrNotFound) {
				opErr = err
				return struct{}{}, false
			}
		}
		if err := s.tbl.Insert(key, b); err != nil {
			opErr = err
			return struct{}{}, true
		}
		return struct{}{}, false
	})

	if opErr != nil {
		s.recycle(b)
		return toStoreError("set "+key, opErr)
	}
	return nil
}

func (s *storeImpl) SetIfUnset(key string, value []byte) error {
	if err := s.writeLock(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	var opErr error
	s.keys.Compute(key, func(_ struct{}, loaded bool) (struct{}, bool) {
		if loaded {
			return struct{}{}, false
		}
		b := s.newBlob(value)
		if err := s.tbl.Insert(key, b); err != nil {
			s.recycle(b)
			if !errors.Is(err, table.ErrExists) {
				opErr = err
				return struct{}{}, true
			}
		}
		return struct{}{}, false
	})
	return toStoreError("set-if-unset "+key, opErr)
}

func (s *storeImpl) Delete(key string) error {
	if err := s.writeLock(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	var opErr error
	s.keys.Compute(key, func(_ struct{}, loaded bool) (struct{}, bool) {
		if !loaded {
			return struct{}{}, true
		}
		if err := s.tbl.Remove(key); err != nil && !errors.Is(err, table.ErrNotFound) {
			opErr = err
			return struct{}{}, false
		}
		return struct{}{}, true
	})
	return toStoreError("delete "+key, opErr)
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	b, ok := s.tbl.Lookup(key)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	if err := s.tbl.Release(key); err != nil {
		return nil, false, toStoreError("get "+key, err)
	}
	return out, true, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	return s.tbl.With(key, func(*blob) {}), nil
}

func (s *storeImpl) Info() (table.Info, error) {
	return s.tbl.Info(), nil
}

func (s *storeImpl) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.NewError(store.RetCInvalidOperation, "store is closed")
	}
	s.closed = true

	drained := 0
	s.keys.Range(func(key string, _ struct{}) bool {
		if err := s.tbl.Remove(key); err == nil {
			drained++
		}
		s.keys.Delete(key)
		return true
	})

	if err := s.tbl.Destroy(); err != nil {
		return toStoreError("destroying table", err)
	}
	plog.Infof("store closed: %d keys deleted, %d values awaiting reclamation", drained, s.tbl.Pending())
	return nil
}

// done is closed once the table has been torn down after Close.
func (s *storeImpl) done() <-chan struct{} {
	return s.tbl.Done()
}
