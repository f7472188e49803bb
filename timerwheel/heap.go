// Package timerwheel implements spec.md §4.5: a min-heap of
// absolute-deadline timers ordered by (deadline, id), supporting
// insertion, lazy cancellation, refresh/reset, and bulk extraction of
// everything due.
package timerwheel

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// rollbackThreshold is the "clock rollback detected" heuristic from
// spec.md §4.5: if now jumps backward by more than this, every
// non-canceled timer is treated as expired rather than left to hang
// indefinitely.
const rollbackThreshold = time.Hour

// Option configures a Heap, following the teacher's functional-options
// shape (eventloop/options.go's LoopOption).
type Option func(*Heap)

// WithClock overrides the monotonic clock source, for deterministic
// tests (the teacher's testHooks philosophy applied to time instead of
// wake/sleep transitions).
func WithClock(now func() time.Time) Option {
	return func(h *Heap) {
		if now != nil {
			h.now = now
		}
	}
}

// Heap is a timer min-heap guarded by a read-write lock: NextTimeout
// and ListExpired take the write lock (they mutate the heap), plain
// queries take the read lock (spec.md §4.5).
type Heap struct {
	mu      sync.RWMutex
	h       timerHeap
	nextID  atomic.Int64
	now     func() time.Time
	lastNow time.Time
}

// New constructs an empty Heap.
func New(opts ...Option) *Heap {
	h := &Heap{now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.lastNow = h.now()
	return h
}

// AddTimer schedules callback to fire after delay, recurring every
// delay thereafter if recurring is true. Returns the timer handle.
func (h *Heap) AddTimer(delay time.Duration, callback func(), recurring bool) (*Timer, error) {
	if callback == nil {
		return nil, ErrNilCallback
	}
	period := time.Duration(0)
	if recurring {
		period = delay
	}
	t := &Timer{
		id:       h.nextID.Add(1),
		deadline: h.now().Add(delay),
		period:   period,
		callback: callback,
	}
	h.mu.Lock()
	heap.Push(&h.h, t)
	h.mu.Unlock()
	return t, nil
}

// Refresh resets a timer's deadline to now+period. A no-op if the timer
// has already been extracted (popped) by ListExpired.
func (h *Heap) Refresh(t *Timer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t.index < 0 {
		return
	}
	t.deadline = h.now().Add(t.period)
	heap.Fix(&h.h, t.index)
}

// Reset changes a timer's period and deadline. If fromNow is true the
// new deadline is now+newDelay; otherwise it's the timer's existing
// deadline+newDelay. A no-op if the timer has already been extracted.
func (h *Heap) Reset(t *Timer, newDelay time.Duration, fromNow bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t.index < 0 {
		return
	}
	t.period = newDelay
	base := t.deadline
	if fromNow {
		base = h.now()
	}
	t.deadline = base.Add(newDelay)
	heap.Fix(&h.h, t.index)
}

// NextTimeout returns the duration until the earliest non-canceled
// timer, and false if the heap holds no live timer.
func (h *Heap) NextTimeout() (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.checkRollback()
	for h.h.Len() > 0 {
		t := h.h.items[0]
		if t.Canceled() {
			heap.Pop(&h.h)
			continue
		}
		d := t.deadline.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// ListExpired pops every timer whose deadline is due (deadline <= now,
// or every live timer if a clock rollback was detected), skipping
// canceled ones, and re-inserts recurring timers with deadline +=
// period exactly once (spec.md §4.5: "never catching up beyond one
// period").
func (h *Heap) ListExpired() []*Timer {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.checkRollback()

	var fired, rearm []*Timer
	for h.h.Len() > 0 {
		t := h.h.items[0]
		if t.deadline.After(now) {
			break
		}
		heap.Pop(&h.h)
		if t.Canceled() {
			continue
		}
		fired = append(fired, t)
		if t.period > 0 {
			t.deadline = t.deadline.Add(t.period)
			rearm = append(rearm, t)
		}
	}
	// Re-inserted only after the scan, so a recurring timer that is still
	// due after one period fires at most once per call.
	for _, t := range rearm {
		heap.Push(&h.h, t)
	}
	return fired
}

// checkRollback updates lastNow and, if the clock has jumped backward
// by more than rollbackThreshold, rewrites every live timer's deadline
// to "now" so the next ListExpired call drains the whole heap instead
// of hanging indefinitely. Must be called with mu held.
func (h *Heap) checkRollback() time.Time {
	now := h.now()
	if now.Before(h.lastNow.Add(-rollbackThreshold)) {
		for _, t := range h.h.items {
			t.deadline = now
		}
		heap.Init(&h.h)
	}
	h.lastNow = now
	return now
}

// Len reports the number of timers still in the heap (including
// not-yet-extracted canceled ones, which are skipped lazily).
func (h *Heap) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.h.Len()
}
