package history

import (
	"container/heap"
	"fmt"

	"github.com/rickgao/candled/internal/model"
)

// Priority orders work items. Lower values are served first.
type Priority int

const (
	PriorityHigh   Priority = iota // continue an instrument already in progress
	PriorityNormal                 // first request for an instrument
	PriorityLow                    // second chance after a transient failure
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// WorkItem is one pending (instrument, year) download.
type WorkItem struct {
	Instrument model.Instrument
	Year       int
	Priority   Priority
}

func (w WorkItem) String() string {
	return fmt.Sprintf("%s %s (%d)", w.Instrument.AssetType, w.Instrument.Name, w.Year)
}

// WorkQueue pops items by priority, then in insertion order.
type WorkQueue struct {
	items workHeap
	seq   uint64
}

// Push adds an item behind every queued item of the same priority.
func (q *WorkQueue) Push(item WorkItem) {
	q.seq++
	heap.Push(&q.items, queuedItem{WorkItem: item, seq: q.seq})
}

// Pop removes the next item. ok is false when the queue is empty.
func (q *WorkQueue) Pop() (item WorkItem, ok bool) {
	if len(q.items) == 0 {
		return WorkItem{}, false
	}
	return heap.Pop(&q.items).(queuedItem).WorkItem, true
}

// Len returns the number of queued items.
func (q *WorkQueue) Len() int {
	return len(q.items)
}

type queuedItem struct {
	WorkItem
	seq uint64
}

type workHeap []queuedItem

func (h workHeap) Len() int { return len(h) }

func (h workHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h workHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *workHeap) Push(x any) { *h = append(*h, x.(queuedItem)) }

func (h *workHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
