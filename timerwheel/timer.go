package timerwheel

import (
	"sync/atomic"
	"time"
)

// Timer is a handle into a Heap (spec.md §3/§4.5): a single-shot or
// recurring deadline plus the callback to run when it fires.
type Timer struct {
	id       int64
	deadline time.Time
	period   time.Duration // 0 for one-shot
	callback func()
	canceled atomic.Bool
	// index is this timer's position in the owning heap's backing
	// slice, maintained by container/heap's Swap; -1 once popped
	// (extracted by ListExpired), which is how Refresh/Reset detect
	// "no longer in the heap" per spec.md §4.5.
	index int
}

// ID returns the timer's id, unique within its owning Heap and used to
// break deadline ties deterministically (spec.md §3, §8 invariant 6).
func (t *Timer) ID() int64 { return t.id }

// Deadline returns the timer's current absolute fire time.
func (t *Timer) Deadline() time.Time { return t.deadline }

// Canceled reports whether Cancel has been called.
func (t *Timer) Canceled() bool { return t.canceled.Load() }

// Cancel marks the timer canceled. Idempotent, and does not touch the
// heap (spec.md §4.5: "sets canceled, does not re-heapify") — a
// canceled timer is skipped lazily the next time it would be extracted.
func (t *Timer) Cancel() {
	t.canceled.Store(true)
}

// Fire invokes the timer's registered callback. Called by whatever
// extracted the timer via ListExpired (spec.md §4.6: the I/O manager
// schedules each fired timer's callback onto the base scheduler).
func (t *Timer) Fire() {
	t.callback()
}

type timerHeap struct {
	items []*Timer
}

func (h *timerHeap) Len() int { return len(h.items) }

func (h *timerHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.deadline.Equal(b.deadline) {
		return a.id < b.id
	}
	return a.deadline.Before(b.deadline)
}

func (h *timerHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(h.items)
	h.items = append(h.items, t)
}

func (h *timerHeap) Pop() any {
	old := h.items
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	h.items = old[:n-1]
	return t
}
