package util

import (
	"testing"
)

func TestDeadlineHeapOrder(t *testing.T) {
	h := NewDeadlineHeap[string]()

	h.Add(1, 50, "a")
	h.Add(2, 10, "b")
	h.Add(3, 30, "c")
	h.Add(4, 10, "d") // same deadline as 2, added later

	want := []uint64{2, 4, 3, 1}
	for i, id := range want {
		it, ok := h.PopDue(100)
		if !ok {
			t.Fatalf("Pop %d: heap empty", i)
		}
		if it.ID != id {
			t.Errorf("Pop %d: expected id %d, got %d", i, id, it.ID)
		}
	}
	if h.Len() != 0 {
		t.Errorf("Heap should be empty, has %d items", h.Len())
	}
}

func TestDeadlineHeapPopDue(t *testing.T) {
	h := NewDeadlineHeap[int]()
	h.Add(1, 100, 1)

	if _, ok := h.PopDue(99); ok {
		t.Error("Item should not be due at 99")
	}
	it, ok := h.PopDue(100)
	if !ok || it.Value != 1 {
		t.Errorf("Item should be due at 100, got %v %v", it, ok)
	}
}

func TestDeadlineHeapUpdate(t *testing.T) {
	h := NewDeadlineHeap[int]()
	h.Add(1, 100, 1)
	h.Add(2, 200, 2)

	h.Add(1, 300, 10)

	top, _ := h.Peek()
	if top.ID != 2 {
		t.Errorf("Expected id 2 on top after moving id 1 back, got %d", top.ID)
	}
	it, ok := h.Get(1)
	if !ok || it.Value != 10 || it.Deadline != 300 {
		t.Errorf("Update not applied: %+v", it)
	}
	if h.Len() != 2 {
		t.Errorf("Update must not add an item, len=%d", h.Len())
	}
}

func TestDeadlineHeapRemove(t *testing.T) {
	h := NewDeadlineHeap[int]()
	h.Add(1, 10, 1)
	h.Add(2, 20, 2)
	h.Add(3, 30, 3)

	v, ok := h.Remove(2)
	if !ok || v != 2 {
		t.Fatalf("Remove(2) = %d, %v", v, ok)
	}
	if h.Contains(2) {
		t.Error("Heap still contains id 2")
	}
	if _, ok := h.Remove(2); ok {
		t.Error("Second Remove(2) should fail")
	}

	first, _ := h.PopDue(100)
	second, _ := h.PopDue(100)
	if first.ID != 1 || second.ID != 3 {
		t.Errorf("Unexpected order after remove: %d, %d", first.ID, second.ID)
	}
}

func TestDeadlineHeapEmpty(t *testing.T) {
	h := NewDeadlineHeap[int]()
	if _, ok := h.Peek(); ok {
		t.Error("Peek on empty heap should fail")
	}
	if _, ok := h.PopDue(^uint64(0)); ok {
		t.Error("PopDue on empty heap should fail")
	}
}
