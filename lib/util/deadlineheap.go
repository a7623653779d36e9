// Package util
//
// This file provides DeadlineHeap, a min-heap of values ordered by a uint64
// deadline and addressable by a uint64 id.
//
// It combines container/heap with a map from id to heap slot:
//   - O(log n) Add, Pop, Remove and re-prioritisation
//   - O(1) Peek, Contains and Get
//
// The timer scheduler stores one callback per scheduled handle in it, ordered
// by the monotonic nanosecond at which the callback is due. Cancel becomes a
// Remove by id.
//
// DeadlineHeap is not thread-safe. The scheduler only ever touches it from its
// own goroutine (or under its own mutex for the manual scheduler).
package util

import (
	"container/heap"
	"strconv"
)

// HeapItem is one element of a DeadlineHeap.
type HeapItem[V any] struct {
	ID       uint64 // Unique identifier of the item
	Deadline uint64 // Ordering key, smallest first
	Value    V
	seq      uint64 // insertion order, breaks deadline ties
	index    int    // position in the heap slice, maintained by heap.Interface
}

func (i *HeapItem[V]) String() string {
	return "{ID: " + strconv.FormatUint(i.ID, 10) + ", Deadline: " + strconv.FormatUint(i.Deadline, 10) + "}"
}

// DeadlineHeap is a min-heap by deadline with access by id.
type DeadlineHeap[V any] struct {
	items []*HeapItem[V]
	byID  map[uint64]*HeapItem[V]
	seq   uint64
}

// NewDeadlineHeap creates an empty heap.
func NewDeadlineHeap[V any]() *DeadlineHeap[V] {
	return &DeadlineHeap[V]{
		items: make([]*HeapItem[V], 0),
		byID:  make(map[uint64]*HeapItem[V]),
	}
}

// --------------------------------------------------------------------------
// heap.Interface (use the methods below instead)
// --------------------------------------------------------------------------

func (h *DeadlineHeap[V]) Len() int { return len(h.items) }

func (h *DeadlineHeap[V]) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Deadline != b.Deadline {
		return a.Deadline < b.Deadline
	}
	return a.seq < b.seq
}

func (h *DeadlineHeap[V]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *DeadlineHeap[V]) Push(x any) {
	it := x.(*HeapItem[V])
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.byID[it.ID] = it
}

func (h *DeadlineHeap[V]) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items[n-1] = nil
	it.index = -1
	h.items = h.items[:n-1]
	delete(h.byID, it.ID)
	return it
}

// --------------------------------------------------------------------------
// Keyed operations
// --------------------------------------------------------------------------

// Add inserts value under id, or moves an existing id to the new deadline
// and replaces its value.
func (h *DeadlineHeap[V]) Add(id, deadline uint64, value V) {
	h.seq++
	if it, ok := h.byID[id]; ok {
		it.Deadline = deadline
		it.Value = value
		it.seq = h.seq
		heap.Fix(h, it.index)
		return
	}
	heap.Push(h, &HeapItem[V]{ID: id, Deadline: deadline, Value: value, seq: h.seq})
}

// Remove deletes the item with the given id and returns its value.
func (h *DeadlineHeap[V]) Remove(id uint64) (V, bool) {
	it, ok := h.byID[id]
	if !ok {
		var zero V
		return zero, false
	}
	heap.Remove(h, it.index)
	return it.Value, true
}

// Peek returns the item with the smallest deadline without removing it.
func (h *DeadlineHeap[V]) Peek() (*HeapItem[V], bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// PopDue removes and returns the earliest item if its deadline is <= now.
func (h *DeadlineHeap[V]) PopDue(now uint64) (*HeapItem[V], bool) {
	it, ok := h.Peek()
	if !ok || it.Deadline > now {
		return nil, false
	}
	return heap.Pop(h).(*HeapItem[V]), true
}

// Contains reports whether id is in the heap.
func (h *DeadlineHeap[V]) Contains(id uint64) bool {
	_, ok := h.byID[id]
	return ok
}

// Get returns the item for id without removing it.
func (h *DeadlineHeap[V]) Get(id uint64) (*HeapItem[V], bool) {
	it, ok := h.byID[id]
	return it, ok
}
