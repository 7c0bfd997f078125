package history

import (
	"testing"

	"github.com/rickgao/candled/internal/model"
)

func TestWorkQueueOrder(t *testing.T) {
	a := model.Instrument{ID: 1, Name: "A"}
	b := model.Instrument{ID: 2, Name: "B"}
	c := model.Instrument{ID: 3, Name: "C"}

	var q WorkQueue
	q.Push(WorkItem{Instrument: a, Year: 2020, Priority: PriorityNormal})
	q.Push(WorkItem{Instrument: b, Year: 2020, Priority: PriorityLow})
	q.Push(WorkItem{Instrument: c, Year: 2020, Priority: PriorityNormal})
	q.Push(WorkItem{Instrument: a, Year: 2019, Priority: PriorityHigh})
	q.Push(WorkItem{Instrument: c, Year: 2019, Priority: PriorityHigh})
	q.Push(WorkItem{Instrument: a, Year: 2018, Priority: PriorityLow})

	want := []struct {
		id   int16
		year int
	}{
		{1, 2019}, // high, first in
		{3, 2019}, // high, second in
		{1, 2020}, // normal, first in
		{3, 2020}, // normal, second in
		{2, 2020}, // low, first in
		{1, 2018}, // low, second in
	}

	if q.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", q.Len(), len(want))
	}
	for i, w := range want {
		item, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if item.Instrument.ID != w.id || item.Year != w.year {
			t.Errorf("pop %d = (%d, %d), want (%d, %d)", i, item.Instrument.ID, item.Year, w.id, w.year)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue returned ok")
	}
}

func TestWorkQueueStableUnderLoad(t *testing.T) {
	var q WorkQueue
	for i := 0; i < 1000; i++ {
		q.Push(WorkItem{Year: i, Priority: Priority(i % 3)})
	}

	last := map[Priority]int{PriorityHigh: -1, PriorityNormal: -1, PriorityLow: -1}
	prev := PriorityHigh
	for q.Len() > 0 {
		item, _ := q.Pop()
		if item.Priority < prev {
			t.Fatalf("priority %v popped after %v", item.Priority, prev)
		}
		if item.Year <= last[item.Priority] {
			t.Fatalf("%v item %d popped after %d", item.Priority, item.Year, last[item.Priority])
		}
		last[item.Priority] = item.Year
		prev = item.Priority
	}
}

func TestPriorityString(t *testing.T) {
	tests := []struct {
		p    Priority
		want string
	}{
		{PriorityHigh, "high"},
		{PriorityNormal, "normal"},
		{PriorityLow, "low"},
		{Priority(9), "priority(9)"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.p), got, tt.want)
		}
	}
}
