package fiber_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wenjin0701/fiber-core/fiber"
)

// S1: basic yield/resume.
func TestFiberYieldResume(t *testing.T) {
	counter := 0
	f, err := fiber.New(func() {
		counter++
		require.NoError(t, fiber.Yield())
		counter++
		require.NoError(t, fiber.Yield())
		counter++
	}, 0, false)
	require.NoError(t, err)

	require.NoError(t, f.Resume())
	require.Equal(t, 1, counter)
	require.Equal(t, fiber.StateReady, f.State())

	require.NoError(t, f.Resume())
	require.Equal(t, 2, counter)
	require.Equal(t, fiber.StateReady, f.State())

	require.NoError(t, f.Resume())
	require.Equal(t, 3, counter)
	require.Equal(t, fiber.StateTerm, f.State())
}

// S2: reset reuse runs the new entry to completion on the same *Fiber
// handle. The first life's goroutine has exited at TERM, so the second
// Resume runs the new entry on a freshly spawned goroutine (and stack).
func TestFiberResetReuse(t *testing.T) {
	counter := 0
	f, err := fiber.New(func() { counter += 1 }, 0, false)
	require.NoError(t, err)

	require.NoError(t, f.Resume())
	require.Equal(t, 1, counter)
	require.Equal(t, fiber.StateTerm, f.State())

	require.NoError(t, f.Reset(func() { counter += 10 }))
	require.Equal(t, fiber.StateReady, f.State())

	require.NoError(t, f.Resume())
	require.Equal(t, 11, counter)
	require.Equal(t, fiber.StateTerm, f.State())
}

// Invariant 1: at most one fiber per OS thread (here, per resumer) has
// state RUNNING at a time. A second Resume attempted while the fiber is
// still RUNNING must be rejected by the CAS rather than corrupt state.
func TestFiberResumeWhileRunningIsRejected(t *testing.T) {
	inFiber := make(chan struct{})
	release := make(chan struct{})
	f, err := fiber.New(func() {
		close(inFiber)
		<-release
	}, 0, false)
	require.NoError(t, err)

	resumeErr := make(chan error, 1)
	go func() { resumeErr <- f.Resume() }()

	<-inFiber
	require.Equal(t, fiber.StateRunning, f.State())

	err = f.Resume()
	require.Error(t, err)
	require.True(t, errors.Is(err, fiber.ErrNotResumable))

	close(release)
	require.NoError(t, <-resumeErr)
	require.Equal(t, fiber.StateTerm, f.State())
}

func TestFiberResumeTerminatedIsPreconditionViolation(t *testing.T) {
	f, err := fiber.New(func() {}, 0, false)
	require.NoError(t, err)
	require.NoError(t, f.Resume())
	require.Equal(t, fiber.StateTerm, f.State())

	err = f.Resume()
	require.Error(t, err)
	require.True(t, errors.Is(err, fiber.ErrNotResumable))
}

func TestFiberResetWhileStillReadyAfterRunIsRejected(t *testing.T) {
	f, err := fiber.New(func() {
		require.NoError(t, fiber.Yield())
	}, 0, false)
	require.NoError(t, err)

	require.NoError(t, f.Resume())
	require.Equal(t, fiber.StateReady, f.State())

	err = f.Reset(func() {})
	require.Error(t, err)
	require.True(t, errors.Is(err, fiber.ErrNotResettable))
}

func TestGetThisReturnsStableMainFiberPerGoroutine(t *testing.T) {
	a := fiber.GetThis()
	b := fiber.GetThis()
	require.Same(t, a, b)

	done := make(chan *fiber.Fiber)
	go func() { done <- fiber.GetThis() }()
	other := <-done
	require.NotSame(t, a, other)
}

// Invariant 3: TotalFiberNum tracks constructed-but-not-destroyed fibers;
// destruction is GC-driven (no explicit destructor in Go), so this test
// forces GC in a bounded retry loop rather than asserting immediately.
func TestTotalFiberNumTracksConstruction(t *testing.T) {
	before := fiber.TotalFiberNum()

	func() {
		f, err := fiber.New(func() {}, 0, false)
		require.NoError(t, err)
		require.Equal(t, before+1, fiber.TotalFiberNum())
		require.NoError(t, f.Resume())
	}()

	for i := 0; i < 20; i++ {
		runtime.GC()
		if fiber.TotalFiberNum() == before {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("TotalFiberNum did not return to baseline %d, got %d", before, fiber.TotalFiberNum())
}

func TestSchedulerOwnedFlag(t *testing.T) {
	f, err := fiber.New(func() {}, 0, true)
	require.NoError(t, err)
	require.True(t, f.SchedulerOwned())

	g, err := fiber.New(func() {}, 0, false)
	require.NoError(t, err)
	require.False(t, g.SchedulerOwned())
}
