package table

import "testing"

func TestSectionsRetireNewest(t *testing.T) {
	ep := &epochs{}
	s := newSections()

	t1 := s.enter(ep, 0)
	t2 := s.enter(ep, 1)
	t3 := s.enter(ep, 0)
	if t1 != 1 || t2 != 2 || t3 != 3 {
		t.Fatalf("unexpected tickets %d %d %d", t1, t2, t3)
	}

	if !s.retireNewest(0) {
		t.Fatal("expected a section in bucket 0")
	}
	if _, ok := s.open.Load(t3); ok {
		t.Fatal("newest ticket of bucket 0 still open")
	}
	if s.quiescentAt(1) {
		t.Fatal("ticket 1 is still open")
	}
	if !s.quiescentAt(0) {
		t.Fatal("no ticket <= 0 can be open")
	}

	// the owner of ticket 3 leaves after a release already took its ticket
	s.leave(t3, 0)
	if s.size() != 1 {
		t.Fatalf("expected 1 open section, got %d", s.size())
	}
	if s.retireNewest(0) {
		t.Fatal("bucket 0 should have no open sections")
	}
	s.leave(t2, 1)
	if s.size() != 0 || !s.quiescentAt(10) {
		t.Fatal("expected registry to be empty")
	}
}

func TestSectionsEnteringBlocksQuiescence(t *testing.T) {
	s := newSections()
	s.entering.Add(1)
	if s.quiescentAt(100) {
		t.Fatal("quiescent while a section is registering")
	}
	s.entering.Add(-1)
	if !s.quiescentAt(100) {
		t.Fatal("expected quiescence")
	}
}

func TestCloseCounted(t *testing.T) {
	ep := &epochs{}
	if ep.closeCounted() {
		t.Fatal("closed a section that was never opened")
	}
	ep.started.Add(2)
	if !ep.closeCounted() || !ep.closeCounted() || ep.closeCounted() {
		t.Fatal("closeCounted must close exactly the opened sections")
	}
}
