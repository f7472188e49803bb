// Package fiber implements spec.md §4.1 (context switch) and §4.2 (Fiber)
// as a pair of stackful-coroutine stand-ins: a goroutine per fiber, and a
// strict two-channel hand-off so that only one of {fiber, resumer} ever
// runs at a time. Go gives user code no portable, unsafe-free way to swap
// raw stack/register state the way the original's swap(from*, to*) does,
// so the hand-off channel pair plays the role of that primitive: blocking
// one side on a channel receive IS the "suspend this context" operation,
// and the corresponding send IS "resume the other". scheduler_owned is
// carried only as data (see Scheduler field): this package's hand-off
// already returns control to whichever goroutine called Resume, which is
// the correct target in both the use_caller and plain cases, so no
// separate "active context" table is needed on top of the channels.
package fiber

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/wenjin0701/fiber-core/fthread"
	"github.com/wenjin0701/fiber-core/internal/gid"
	"github.com/wenjin0701/fiber-core/rtlog"
)

// DefaultStackSize is the nominal stack size recorded against a fiber
// built without an explicit size (spec.md §3's 128 KiB default). Go
// fibers run on Go's own growable goroutine stack, so this value is
// bookkeeping/API parity rather than an actual allocation request.
const DefaultStackSize = 128 * 1024

var (
	nextID           atomic.Int64
	liveCount        atomic.Int64
	currentFiberMu   sync.RWMutex
	currentFiberByGR = map[uint64]*Fiber{}
)

// Fiber is a cooperative execution context: an entry function running on
// its own goroutine, handed control in strict alternation with whichever
// goroutine called Resume.
type Fiber struct {
	id         int64
	state      *fastState
	stackSize  int
	schedOwned bool
	// isMain marks a GetThis-created wrapper around a plain goroutine: it
	// has no entry, no hand-off channels, and cannot be Resumed, Yielded
	// from directly (Yield targets whatever fiber run() registered, so a
	// caller never yields a main fiber by name), or Reset.
	isMain bool

	// Scheduler is a non-owning back-pointer to whatever ran this fiber,
	// set by the scheduler package before each Resume it performs. It is
	// typed any rather than
	// a concrete scheduler type to avoid an import cycle (scheduler
	// depends on fiber, not the reverse); callers that need it typed
	// assert it back to *scheduler.Scheduler. See DESIGN.md's Open
	// Question (c): lifetime is the scheduler's responsibility, not
	// this package's.
	Scheduler any

	// requeueSuppressed lets a fiber (or whatever registered it for an
	// external event, e.g. the I/O manager) tell the scheduler "don't
	// auto-re-enqueue me on this yield — I've arranged to be re-enqueued
	// myself once some external condition fires". Consumed exactly once
	// per yield/termination by whatever called Resume.
	requeueSuppressed atomic.Bool

	entry     atomic.Pointer[func()]
	everRun   atomic.Bool
	// goroutineAlive guards run()'s spawn: ensureStarted only spawns a
	// new goroutine when it CASes this false->true. run() is single-shot
	// (one resumeCh receive, one life, then return) rather than parking
	// in a loop across lives, so a Reset followed by another Resume
	// spawns a fresh goroutine rather than reusing the terminated one —
	// see run's doc comment for why.
	goroutineAlive atomic.Bool
	resumeCh       chan struct{}
	yieldCh        chan struct{}
	done           chan struct{}

	// resumingThread is set by Resume, on the resumer's goroutine, right
	// before the resumeCh send that wakes this fiber's own goroutine;
	// the channel send/receive pair gives the write a happens-before
	// relationship with every read of it on this fiber's own goroutine,
	// so no separate synchronization is needed. threadRelease is owned
	// and touched only by this fiber's own goroutine (run/yieldSelf),
	// never concurrently.
	resumingThread *fthread.Thread
	threadRelease  func()
}

// New constructs a fiber in state READY around entry. stackSize is
// recorded for API parity with spec.md §3's Fiber.stack field and is not
// itself an allocation request; pass 0 for DefaultStackSize.
func New(entry func(), stackSize int, schedulerOwned bool) (*Fiber, error) {
	if entry == nil {
		return nil, ErrNilEntry
	}
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}
	f := &Fiber{
		id:         nextID.Add(1),
		state:      newFastState(StateReady),
		stackSize:  stackSize,
		schedOwned: schedulerOwned,
		resumeCh:   make(chan struct{}),
		yieldCh:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	f.entry.Store(&entry)
	liveCount.Add(1)
	runtime.SetFinalizer(f, (*Fiber).finalize)
	return f, nil
}

// finalize runs when the fiber becomes unreachable (Go's stand-in for
// spec.md §4.2's explicit destruction): it releases the parked goroutine
// (if one was ever started) and decrements the live-fiber count that
// backs TotalFiberNum.
func (f *Fiber) finalize() {
	close(f.done)
	liveCount.Add(-1)
}

// ID returns the fiber's process-unique, monotonically increasing id.
func (f *Fiber) ID() int64 { return f.id }

// State returns the fiber's current state.
func (f *Fiber) State() State { return f.state.Load() }

// SchedulerOwned reports whether this fiber was constructed as owned by
// a scheduler (spec.md §3's scheduler_owned). It is carried as data only:
// the scheduler package's re-enqueue decision looks at State and
// ConsumeRequeueSuppression, not at this flag.
func (f *Fiber) SchedulerOwned() bool { return f.schedOwned }

// StackSize returns the configured (nominal) stack size.
func (f *Fiber) StackSize() int { return f.stackSize }

// SuppressRequeue marks that the scheduler must not automatically
// re-enqueue this fiber after its next yield, because something else
// (typically an I/O manager registration) has taken responsibility for
// re-enqueuing it once an external event fires. Intended to be called
// by the fiber itself, immediately before yielding.
func (f *Fiber) SuppressRequeue() { f.requeueSuppressed.Store(true) }

// ConsumeRequeueSuppression reports and clears the suppression flag.
// Called once by whatever resumed the fiber, after Resume returns.
func (f *Fiber) ConsumeRequeueSuppression() bool { return f.requeueSuppressed.Swap(false) }

// TotalFiberNum returns the number of constructed-but-not-yet-destroyed
// fibers (spec.md §4.2, §8 invariant 3). Destruction is detected via a
// GC finalizer (see New/finalize) since Go has no explicit destructor;
// the count is therefore accurate only up to GC timing, which is the
// idiomatic-Go substitute for "destroyed at scope exit".
func TotalFiberNum() int64 { return liveCount.Load() }

// Resume transitions the fiber READY -> RUNNING and blocks the caller
// until the fiber yields or its entry returns (or panics). It is the
// Go-idiomatic stand-in for swap(from*, to*) with to=this fiber.
func (f *Fiber) Resume() error {
	if f.isMain {
		return precondition(fmt.Errorf("%w: fiber %d is a thread main fiber, not resumable", ErrNotResumable, f.id))
	}
	if !f.state.CAS(StateReady, StateRunning) {
		s := f.state.Load()
		err := fmt.Errorf("%w: fiber %d state=%s", ErrNotResumable, f.id, s)
		return precondition(err)
	}
	f.everRun.Store(true)
	f.ensureStarted()
	f.resumingThread = fthread.GetThis()
	f.resumeCh <- struct{}{}
	<-f.yieldCh
	return nil
}

// Yield suspends the calling fiber (which must be the current fiber on
// this goroutine, state RUNNING) back to whatever goroutine called
// Resume, transitioning state back to READY. It returns once this fiber
// is next Resumed.
func Yield() error {
	g := gid.Current()
	currentFiberMu.RLock()
	f := currentFiberByGR[g]
	currentFiberMu.RUnlock()
	if f == nil {
		return precondition(fmt.Errorf("%w: no fiber current on this goroutine", ErrNotYieldable))
	}
	if f.isMain {
		return precondition(fmt.Errorf("%w: fiber %d is a thread main fiber, not yieldable", ErrNotYieldable, f.id))
	}
	return f.yieldSelf()
}

func (f *Fiber) yieldSelf() error {
	if !f.state.CAS(StateRunning, StateReady) {
		s := f.state.Load()
		return precondition(fmt.Errorf("%w: fiber %d state=%s", ErrNotYieldable, f.id, s))
	}
	f.releaseThread()
	f.yieldCh <- struct{}{}
	<-f.resumeCh
	f.associateThread()
	f.state.Store(StateRunning)
	return nil
}

// associateThread registers this fiber's own goroutine (the calling
// goroutine, since these are only ever called from run/yieldSelf) as
// reporting resumingThread from fthread.GetThis, so task code running
// inside the fiber observes the logical worker thread that resumed it
// rather than nil (fiber.run's goroutine never calls fthread.Start).
func (f *Fiber) associateThread() {
	f.threadRelease = fthread.AssociateCurrent(f.resumingThread)
}

// releaseThread undoes associateThread before this fiber's goroutine
// suspends (yield) or terminates, so the association doesn't outlive
// the life segment it was captured for.
func (f *Fiber) releaseThread() {
	if f.threadRelease != nil {
		f.threadRelease()
		f.threadRelease = nil
	}
}

// Reset rewinds a fiber to state READY with a new entry. Legal only when
// state is TERM, or READY and never yet resumed (spec.md §3/§4.2); this
// is the only way to reuse a fiber (the Go-idiomatic stand-in for §8
// invariant 7's "same stack region" is the same *Fiber handle and entry
// slot, not literally the same goroutine: run's own goroutine exits at
// the end of each life, so a Resume following Reset spawns a fresh one).
func (f *Fiber) Reset(entry func()) error {
	if entry == nil {
		return ErrNilEntry
	}
	if f.isMain {
		return precondition(fmt.Errorf("%w: fiber %d is a thread main fiber, not resettable", ErrNotResettable, f.id))
	}
	s := f.state.Load()
	legal := s == StateTerm || (s == StateReady && !f.everRun.Load())
	if !legal {
		err := fmt.Errorf("%w: fiber %d state=%s everRun=%t", ErrNotResettable, f.id, s, f.everRun.Load())
		return precondition(err)
	}
	f.entry.Store(&entry)
	f.everRun.Store(false)
	f.state.Store(StateReady)
	return nil
}

// ensureStarted spawns run on a fresh goroutine the first time this life
// needs one. run is single-shot (see its doc comment), so a fiber being
// Resumed again after a prior life ended has no goroutine left waiting
// for it; the CAS here is what decides, race-free, whether this call is
// the one that must spawn a replacement.
func (f *Fiber) ensureStarted() {
	if f.goroutineAlive.CompareAndSwap(false, true) {
		go f.run()
	}
}

// run is the fiber's dedicated goroutine: the Go-idiomatic trampoline of
// spec.md §4.1. It handles exactly one life (one resume through to TERM,
// which may itself contain many yield/resume round-trips, all handled
// inside the single runOnce call below) and then exits.
//
// An earlier version of this loop parked in a second iteration waiting
// for a Reset to hand it a new entry, so the same goroutine could serve
// every life a fiber ever has. That goroutine is a strong reference to
// f for as long as it runs, so a fiber that is Resumed once and never
// Reset — which includes every transient fiber scheduler.runEntry wraps
// a plain callable in — parked forever with nothing left to wake it,
// and f.finalize (so TotalFiberNum) could never run: one permanently
// blocked goroutine leaked per such fiber. Exiting after every life
// fixes that; a later Reset now costs a fresh goroutine spawn via
// ensureStarted rather than reusing this one, which is the one the spec
// actually requires finalizability of.
func (f *Fiber) run() {
	g := gid.Current()
	currentFiberMu.Lock()
	currentFiberByGR[g] = f
	currentFiberMu.Unlock()
	defer func() {
		currentFiberMu.Lock()
		delete(currentFiberByGR, g)
		currentFiberMu.Unlock()
	}()

	select {
	case <-f.resumeCh:
	case <-f.done:
		f.goroutineAlive.Store(false)
		return
	}
	f.associateThread()
	f.runOnce()
}

// runOnce executes one "life" of the fiber: from the resume that started
// it through to TERM, recovering any panic the way spec.md §4.1's
// trampoline and §7's "user-fiber faults" require: logged, never
// propagated across the context switch.
func (f *Fiber) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			rtlog.Errf(fmt.Errorf("%v", r), "fiber %d: entry panicked", f.id)
		}
		f.state.Store(StateTerm)
		f.releaseThread()
		// goroutineAlive must go false before the yieldCh send below:
		// Resume (unblocked by that send) may immediately Reset and
		// Resume again, and ensureStarted's CAS must see this goroutine
		// as no longer available so it spawns a fresh one instead of
		// sending to a resumeCh nobody is left receiving on.
		f.goroutineAlive.Store(false)
		f.yieldCh <- struct{}{}
	}()
	entry := *f.entry.Load()
	entry()
}

// GetThis returns the fiber considered "current" on the calling
// goroutine, lazily constructing a non-owned wrapper fiber representing
// the goroutine itself on first call (spec.md §4.2's "thread main
// fiber"). Every later call from the same goroutine returns the same
// wrapper, including calls nested inside a real fiber's entry, which
// instead resolve to that fiber (set by run, above).
func GetThis() *Fiber {
	g := gid.Current()
	currentFiberMu.RLock()
	f := currentFiberByGR[g]
	currentFiberMu.RUnlock()
	if f != nil {
		return f
	}

	currentFiberMu.Lock()
	defer currentFiberMu.Unlock()
	if f := currentFiberByGR[g]; f != nil {
		return f
	}
	// The thread/goroutine's main fiber has no owned stack (spec.md §3)
	// and is excluded from TotalFiberNum, which tracks stack-owning
	// fibers constructed via New.
	main := &Fiber{
		id:     nextID.Add(1),
		state:  newFastState(StateRunning),
		isMain: true,
	}
	currentFiberByGR[g] = main
	return main
}

func precondition(err error) error {
	if rtlog.Strict() {
		panic(err)
	}
	rtlog.Errf(err, "fiber: precondition violation")
	return err
}
