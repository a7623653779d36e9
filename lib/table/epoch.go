package table

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sys/cpu"
)

// --------------------------------------------------------------------------
// Epoch Counter Pair
// --------------------------------------------------------------------------

// epochs holds the started/completed pair. Every reader increments both, so
// each counter sits on its own cache line.
type epochs struct {
	_         cpu.CacheLinePad
	started   atomic.Uint64
	_         cpu.CacheLinePad
	completed atomic.Uint64
	_         cpu.CacheLinePad
}

// closeCounted increments completed unless that would overtake started.
// Returns false for an unmatched close.
func (e *epochs) closeCounted() bool {
	for {
		c := e.completed.Load()
		if c >= e.started.Load() {
			return false
		}
		if e.completed.CompareAndSwap(c, c+1) {
			return true
		}
	}
}

// --------------------------------------------------------------------------
// Section registry (exact quiescence)
// --------------------------------------------------------------------------

// sections tracks the tickets of open read sections together with the bucket
// each one looked into.
//
// A reader raises entering before taking its ticket and lowers it only after
// the ticket is registered. A reclaimer that sees entering == 0 and then scans
// the registry therefore sees every ticket handed out before its scan began.
type sections struct {
	_        cpu.CacheLinePad
	entering atomic.Int64
	_        cpu.CacheLinePad
	open     *xsync.MapOf[uint64, uint32]
}

func newSections() *sections {
	return &sections{open: xsync.NewMapOf[uint64, uint32]()}
}

// enter opens a section for bucket idx and returns its ticket.
func (s *sections) enter(ep *epochs, idx uint32) uint64 {
	s.entering.Add(1)
	ticket := ep.started.Add(1)
	s.open.Store(ticket, idx)
	s.entering.Add(-1)
	return ticket
}

// leave closes the section identified by ticket. If a Release in the same
// bucket already retired that ticket, the newest ticket of the bucket is
// retired instead, which keeps the per-bucket accounting balanced.
func (s *sections) leave(ticket uint64, idx uint32) {
	if _, ok := s.open.LoadAndDelete(ticket); ok {
		return
	}
	s.retireNewest(idx)
}

// retireNewest removes the highest open ticket registered for bucket idx.
//
// The caller is a section of bucket idx whose own ticket is still counted,
// so the ticket removed is never older than the caller's. Each bucket's open
// tickets thus stay element-wise at or below the tickets of the readers that
// really still hold a reference.
func (s *sections) retireNewest(idx uint32) bool {
	for {
		var newest uint64
		found := false
		s.open.Range(func(ticket uint64, b uint32) bool {
			if b == idx && ticket > newest {
				newest, found = ticket, true
			}
			return true
		})
		if !found {
			return false
		}
		if _, ok := s.open.LoadAndDelete(newest); ok {
			return true
		}
		// lost the race against another closer, look again
	}
}

// quiescentAt reports whether no section with a ticket <= epoch can still be
// open.
func (s *sections) quiescentAt(epoch uint64) bool {
	if s.entering.Load() != 0 {
		return false
	}
	ok := true
	s.open.Range(func(ticket uint64, _ uint32) bool {
		if ticket <= epoch {
			ok = false
			return false
		}
		return true
	})
	return ok
}

// size returns the number of open sections.
func (s *sections) size() int {
	return s.open.Size()
}
