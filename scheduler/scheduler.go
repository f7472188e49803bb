// Package scheduler implements spec.md §4.4: a fixed pool of worker
// threads draining a shared affinity-aware FIFO queue of fibers and
// plain callables.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/wenjin0701/fiber-core/fiber"
	"github.com/wenjin0701/fiber-core/fthread"
	"github.com/wenjin0701/fiber-core/rtlog"
)

// Scheduler owns a worker pool and a single shared task queue.
// iomanager.IOManager embeds a *Scheduler and overrides its idle/tickle
// behavior via WithHooks.
type Scheduler struct {
	opts *options

	mu          sync.Mutex
	cond        *sync.Cond
	queue       workQueue
	idleCount   int
	activeLoops int

	state *schedulerState

	workers []*fthread.Thread
}

// New constructs a Scheduler in state NEW. Start must be called before
// any submitted work runs.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		opts:  resolveOptions(opts),
		state: newSchedulerState(StateNew),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State { return s.state.Load() }

// ThreadCount returns the configured worker count (including the
// caller's reserved slot, if WithUseCaller(true) was set).
func (s *Scheduler) ThreadCount() int { return s.opts.threads }

// QueueLength reports the number of entries currently queued (for
// diagnostics/tests; racy by nature against concurrent Submit/dequeue).
func (s *Scheduler) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Length()
}

// Start spawns the scheduler's worker threads (spec.md §4.4's
// thread_count, minus one if WithUseCaller(true) was set) and returns
// immediately; it does not block.
func (s *Scheduler) Start() error {
	if !s.state.CAS(StateNew, StateRunning) {
		return ErrAlreadyStarted
	}
	spawn := s.opts.threads
	if s.opts.useCaller {
		spawn--
	}
	s.workers = make([]*fthread.Thread, 0, spawn)
	for i := 0; i < spawn; i++ {
		idx := i
		name := fmt.Sprintf("%s-%d", s.opts.name, idx)
		th := fthread.Start(name, func(*fthread.Thread) {
			s.workerLoop(idx)
		})
		s.workers = append(s.workers, th)
	}
	return nil
}

// Submit enqueues a *fiber.Fiber (must be state READY) or a plain
// func(), with optional worker affinity (AnyAffinity for none). Legal
// in any state except TERMINATED (spec.md §4.4); submissions made
// before Start are queued for the first Start to drain.
func (s *Scheduler) Submit(item any, affinity int) error {
	if item == nil {
		return ErrNilItem
	}
	switch v := item.(type) {
	case *fiber.Fiber:
		if v.State() != fiber.StateReady {
			return fmt.Errorf("scheduler: submitted fiber %d not READY (state=%s)", v.ID(), v.State())
		}
	case func():
	default:
		return fmt.Errorf("scheduler: unsupported item type %T", item)
	}
	if s.state.Load() == StateTerminated {
		return ErrTerminated
	}

	s.mu.Lock()
	s.queue.push(queueEntry{item: item, affinity: affinity})
	s.mu.Unlock()
	s.tickle()
	return nil
}

// Stop marks the scheduler STOPPING, wakes every worker, optionally
// runs the caller's own scheduling-fiber slot (if WithUseCaller(true)),
// then joins every spawned worker. After Stop returns the scheduler is
// TERMINATED and must not be reused (spec.md §4.4).
func (s *Scheduler) Stop() error {
	if s.state.Load() == StateNew {
		return ErrNotRunning
	}
	s.state.CAS(StateRunning, StateStopping)
	s.tickle()

	if s.opts.useCaller {
		callerIndex := len(s.workers)
		s.workerLoop(callerIndex)
	}

	for _, w := range s.workers {
		_ = w.Join()
	}
	s.state.Store(StateTerminated)
	return nil
}

// workerLoop is the per-thread main scheduling loop, spec.md §4.4's
// five numbered steps.
func (s *Scheduler) workerLoop(index int) {
	s.mu.Lock()
	s.activeLoops++
	s.mu.Unlock()

	for {
		s.mu.Lock()
		entry, ok := s.queue.popMatching(index)
		if ok {
			s.mu.Unlock()
			s.runEntry(entry, index)
			continue
		}

		// No matching entry: step 1's idle_count bookkeeping, and the
		// step-5 exit check, both done without releasing the lock in
		// between (the default condvar path keeps the lock held clear
		// through cond.Wait, which avoids a lost-wakeup race between
		// Stop's tickle and this goroutine registering as a waiter).
		s.idleCount++
		stopping := s.state.Load() == StateStopping
		quiescent := stopping && s.queue.Length() == 0 && s.idleCount == s.activeLoops
		if quiescent && s.opts.readyToStop != nil {
			// Checked with the lock held, same as the rest of this
			// condition, so a concurrent Submit/tickle racing the
			// check is never silently missed.
			quiescent = s.opts.readyToStop(s)
		}
		if quiescent {
			// activeLoops-- happens in this same critical section,
			// not via a deferred lock/unlock taken after return: folding
			// both counters into one atomic update is what makes
			// idleCount==activeLoops a reliable barrier. A separate,
			// later decrement (e.g. a defer that re-locks after this
			// function returns) opens a window in which a peer can
			// observe idleCount already down but activeLoops not yet,
			// miss the exit condition, and go back to cond.Wait() with
			// no further wake coming (Stop issues exactly one
			// Broadcast).
			s.idleCount--
			s.activeLoops--
			s.mu.Unlock()
			return
		}

		if s.opts.onIdle != nil {
			s.mu.Unlock()
			s.opts.onIdle(s, index)
			s.mu.Lock()
		} else {
			s.cond.Wait()
		}
		s.idleCount--
		s.mu.Unlock()
	}
}

// runEntry resumes a fiber (wrapping a plain callable in a transient,
// scheduler-owned fiber first) and re-enqueues it with AnyAffinity if
// it's still READY and hasn't suppressed that (spec.md §4.4 steps 3-4).
func (s *Scheduler) runEntry(e queueEntry, workerIndex int) {
	var f *fiber.Fiber
	switch v := e.item.(type) {
	case *fiber.Fiber:
		f = v
	case func():
		nf, err := fiber.New(v, s.opts.stackSize, true)
		if err != nil {
			rtlog.Errf(err, "scheduler: failed to wrap callable as a fiber")
			return
		}
		f = nf
	default:
		rtlog.Errf(fmt.Errorf("unexpected queue entry type %T", e.item), "scheduler: dropping malformed entry")
		return
	}
	f.Scheduler = s

	if f.State() != fiber.StateReady {
		rtlog.Warnf("scheduler: skipping fiber %d not in state READY (state=%s)", f.ID(), f.State())
		return
	}
	if err := f.Resume(); err != nil {
		rtlog.Errf(err, "scheduler: resume of fiber %d failed", f.ID())
		return
	}
	suppressed := f.ConsumeRequeueSuppression()
	if f.State() == fiber.StateReady && !suppressed {
		s.mu.Lock()
		s.queue.push(queueEntry{item: f, affinity: AnyAffinity})
		s.mu.Unlock()
		s.tickle()
	}
}

// tickle wakes a potentially idle worker (spec.md §4.4/GLOSSARY).
func (s *Scheduler) tickle() {
	if s.opts.onTickle != nil {
		s.opts.onTickle(s)
		return
	}
	s.cond.Broadcast()
}
