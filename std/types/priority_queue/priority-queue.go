// Package priority_queue is a generic min-heap. Items with equal priority
// come out in the order they were pushed.
package priority_queue

import (
	"container/heap"

	"golang.org/x/exp/constraints"
)

type Item[V any, P constraints.Ordered] struct {
	object   V
	priority P
	seq      uint64
	index    int
}

type wrapper[V any, P constraints.Ordered] []*Item[V, P]

func (pq *wrapper[V, P]) Len() int {
	return len(*pq)
}

func (pq *wrapper[V, P]) Less(i, j int) bool {
	a, b := (*pq)[i], (*pq)[j]
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

func (pq *wrapper[V, P]) Swap(i, j int) {
	(*pq)[i], (*pq)[j] = (*pq)[j], (*pq)[i]
	(*pq)[i].index = i
	(*pq)[j].index = j
}

func (pq *wrapper[V, P]) Push(x any) {
	item := x.(*Item[V, P])
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *wrapper[V, P]) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

// Queue is a priority queue returning the MINIMUM priority first.
type Queue[V any, P constraints.Ordered] struct {
	pq   wrapper[V, P]
	next uint64
}

// New creates a new priority queue. The zero Queue is also ready to use.
func New[V any, P constraints.Ordered]() Queue[V, P] {
	return Queue[V, P]{pq: wrapper[V, P]{}}
}

// Len returns the number of queued items.
func (pq *Queue[V, P]) Len() int {
	return pq.pq.Len()
}

// Push adds value with the given priority.
func (pq *Queue[V, P]) Push(value V, priority P) *Item[V, P] {
	ret := &Item[V, P]{
		object:   value,
		priority: priority,
		seq:      pq.next,
	}
	pq.next++
	heap.Push(&pq.pq, ret)
	return ret
}

// PeekPriority returns the priority of the minimum element.
func (pq *Queue[V, P]) PeekPriority() P {
	return pq.pq[0].priority
}

// Pop removes and returns the minimum element.
func (pq *Queue[V, P]) Pop() V {
	return heap.Pop(&pq.pq).(*Item[V, P]).object
}

// Remove takes item out of the queue. Returns false if it was already popped.
func (pq *Queue[V, P]) Remove(item *Item[V, P]) bool {
	if item.index < 0 || item.index >= len(pq.pq) || pq.pq[item.index] != item {
		return false
	}
	heap.Remove(&pq.pq, item.index)
	return true
}
