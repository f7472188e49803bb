package timerwheel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wenjin0701/fiber-core/timerwheel"
)

func newClock(start time.Time) (func() time.Time, func(time.Duration)) {
	cur := start
	return func() time.Time { return cur }, func(d time.Duration) { cur = cur.Add(d) }
}

// Invariant 6: fire order respects non-decreasing deadline, ties broken
// by id.
func TestListExpiredOrdersByDeadlineThenID(t *testing.T) {
	now, advance := newClock(time.Unix(0, 0))
	h := timerwheel.New(timerwheel.WithClock(now))

	var order []int
	_, err := h.AddTimer(3*time.Second, func() { order = append(order, 3) }, false)
	require.NoError(t, err)
	_, err = h.AddTimer(1*time.Second, func() { order = append(order, 1) }, false)
	require.NoError(t, err)
	_, err = h.AddTimer(1*time.Second, func() { order = append(order, 10) }, false)
	require.NoError(t, err)
	_, err = h.AddTimer(2*time.Second, func() { order = append(order, 2) }, false)
	require.NoError(t, err)

	advance(5 * time.Second)
	fired := h.ListExpired()
	require.Len(t, fired, 4)
	for _, f := range fired {
		f.Fire()
	}
	require.Equal(t, []int{1, 10, 2, 3}, order)
}

func TestNextTimeoutSkipsCanceled(t *testing.T) {
	now, _ := newClock(time.Unix(0, 0))
	h := timerwheel.New(timerwheel.WithClock(now))

	tm, err := h.AddTimer(1*time.Second, func() {}, false)
	require.NoError(t, err)
	tm.Cancel()

	_, err = h.AddTimer(2*time.Second, func() {}, false)
	require.NoError(t, err)

	d, ok := h.NextTimeout()
	require.True(t, ok)
	require.Equal(t, 2*time.Second, d)
}

func TestRecurringTimerReinsertsWithPeriod(t *testing.T) {
	now, advance := newClock(time.Unix(0, 0))
	h := timerwheel.New(timerwheel.WithClock(now))

	fires := 0
	_, err := h.AddTimer(500*time.Millisecond, func() { fires++ }, true)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		advance(500 * time.Millisecond)
		for _, f := range h.ListExpired() {
			f.Fire()
		}
	}
	require.Equal(t, 5, fires)
	require.Equal(t, 1, h.Len())
}

func TestCancelIsIdempotentAndLazy(t *testing.T) {
	now, _ := newClock(time.Unix(0, 0))
	h := timerwheel.New(timerwheel.WithClock(now))
	tm, err := h.AddTimer(time.Second, func() {}, false)
	require.NoError(t, err)

	require.Equal(t, 1, h.Len())
	tm.Cancel()
	tm.Cancel()
	require.True(t, tm.Canceled())
	require.Equal(t, 1, h.Len(), "cancel must not re-heapify")
}

func TestClockRollbackFlushesAllTimers(t *testing.T) {
	now, advance := newClock(time.Unix(10000, 0))
	h := timerwheel.New(timerwheel.WithClock(now))

	_, err := h.AddTimer(time.Hour, func() {}, false)
	require.NoError(t, err)

	advance(-2 * time.Hour)
	expired := h.ListExpired()
	require.Len(t, expired, 1)
}

func TestRefreshNoopAfterExtraction(t *testing.T) {
	now, advance := newClock(time.Unix(0, 0))
	h := timerwheel.New(timerwheel.WithClock(now))
	tm, err := h.AddTimer(time.Second, func() {}, false)
	require.NoError(t, err)

	advance(2 * time.Second)
	expired := h.ListExpired()
	require.Len(t, expired, 1)

	before := tm.Deadline()
	h.Refresh(tm)
	require.Equal(t, before, tm.Deadline(), "refresh on an extracted timer must be a no-op")
}
