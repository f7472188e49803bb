package scheduler_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wenjin0701/fiber-core/fthread"
	"github.com/wenjin0701/fiber-core/scheduler"
)

func TestSchedulerRunsOneMillionCallablesAcrossWorkers(t *testing.T) {
	s := scheduler.New(scheduler.WithThreads(4))
	require.NoError(t, s.Start())

	const n = 1_000_000
	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		require.NoError(t, s.Submit(func() {
			count.Add(1)
			wg.Done()
		}, scheduler.AnyAffinity))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for all callables to run")
	}
	require.EqualValues(t, n, count.Load())
	require.NoError(t, s.Stop())
}

func TestSchedulerAffinityPinsToWorker(t *testing.T) {
	s := scheduler.New(scheduler.WithThreads(3))
	require.NoError(t, s.Start())

	const pinned = 3
	var wg sync.WaitGroup
	wg.Add(pinned)
	ids := make(chan int32, pinned)
	for i := 0; i < pinned; i++ {
		require.NoError(t, s.Submit(func() {
			defer wg.Done()
			th := fthread.GetThis()
			require.NotNil(t, th)
			ids <- th.ID()
		}, 0))
	}
	wg.Wait()
	close(ids)

	var first int32
	first = <-ids
	for id := range ids {
		require.Equal(t, first, id, "all affinity-0 tasks must run on the same worker thread")
	}
	require.NoError(t, s.Stop())
}

func TestSchedulerSubmitBeforeStartIsQueued(t *testing.T) {
	s := scheduler.New(scheduler.WithThreads(2))

	var ran atomic.Bool
	require.NoError(t, s.Submit(func() { ran.Store(true) }, scheduler.AnyAffinity))
	require.Equal(t, 1, s.QueueLength())

	require.NoError(t, s.Start())
	require.Eventually(t, ran.Load, time.Second, time.Millisecond)
	require.NoError(t, s.Stop())
}

func TestSchedulerSubmitAfterStopIsRejected(t *testing.T) {
	s := scheduler.New(scheduler.WithThreads(1))
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())

	err := s.Submit(func() {}, scheduler.AnyAffinity)
	require.ErrorIs(t, err, scheduler.ErrTerminated)
}

func TestSchedulerStopIsQuiescent(t *testing.T) {
	s := scheduler.New(scheduler.WithThreads(4))
	require.NoError(t, s.Start())

	var count atomic.Int64
	for i := 0; i < 1000; i++ {
		require.NoError(t, s.Submit(func() { count.Add(1) }, scheduler.AnyAffinity))
	}
	require.NoError(t, s.Stop())
	require.EqualValues(t, 1000, count.Load())
	require.Equal(t, 0, s.QueueLength())
	require.Equal(t, scheduler.StateTerminated, s.State())
}

func TestSchedulerUseCallerRunsCallerAsAWorker(t *testing.T) {
	s := scheduler.New(scheduler.WithThreads(2), scheduler.WithUseCaller(true))
	require.NoError(t, s.Start())

	const n = 100
	var count atomic.Int64
	for i := 0; i < n; i++ {
		require.NoError(t, s.Submit(func() { count.Add(1) }, scheduler.AnyAffinity))
	}

	// Stop runs the caller's reserved worker slot inline before joining
	// the single spawned worker, so it must itself observe all the work
	// completed by the time it returns.
	require.NoError(t, s.Stop())
	require.EqualValues(t, n, count.Load())
}

func TestSchedulerStartTwiceIsRejected(t *testing.T) {
	s := scheduler.New(scheduler.WithThreads(1))
	require.NoError(t, s.Start())
	require.ErrorIs(t, s.Start(), scheduler.ErrAlreadyStarted)
	require.NoError(t, s.Stop())
}

func TestSchedulerStopBeforeStartIsRejected(t *testing.T) {
	s := scheduler.New(scheduler.WithThreads(1))
	require.ErrorIs(t, s.Stop(), scheduler.ErrNotRunning)
}
