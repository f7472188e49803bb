// Package iomanager implements spec.md §4.6: a Scheduler specialized so
// that its idle period is spent waiting on a readiness-based OS
// multiplexer (epoll on Linux, kqueue on Darwin) and a timer heap,
// instead of sleeping on a plain condition variable.
package iomanager

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wenjin0701/fiber-core/fiber"
	"github.com/wenjin0701/fiber-core/rtlog"
	"github.com/wenjin0701/fiber-core/scheduler"
	"github.com/wenjin0701/fiber-core/timerwheel"

	"github.com/joeycumines/go-catrate"
)

// IOManager embeds *scheduler.Scheduler (spec.md §4.6 "extends
// Scheduler") and overrides its idle/tickle/stop-quiescence hooks via
// scheduler.WithHooks — Go's composition-based stand-in for subclass
// override.
type IOManager struct {
	*scheduler.Scheduler

	poller      *poller
	wakeReadFd  int
	wakeWriteFd int

	table  *fdTable
	timers *timerwheel.Heap

	// pending is spec.md §4.6's "pending-event counter used by
	// stop-quiescence": incremented by AddEvent, decremented whenever a
	// registered direction stops being registered (fired, deleted, or
	// canceled).
	pending atomic.Int64

	maxTimeoutMs int

	// errLimiter rate-limits the "poll wait failed" log line per
	// category so a multiplexer stuck returning transient errors cannot
	// flood logs (spec.md §7: transient OS errors are retried
	// internally; this only bounds how loudly that retrying is logged).
	errLimiter *catrate.Limiter
}

// New constructs an IOManager. schedulerOpts configures the embedded
// Scheduler (thread count, name, use_caller, ...); opts configures the
// I/O manager itself.
func New(schedulerOpts []scheduler.Option, opts ...Option) (*IOManager, error) {
	cfg := resolveOptions(opts)

	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("iomanager: create poller: %w", err)
	}
	readFd, writeFd, err := createWakeFd()
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("iomanager: create wake fd: %w", err)
	}

	m := &IOManager{
		poller:       p,
		wakeReadFd:   readFd,
		wakeWriteFd:  writeFd,
		table:        &fdTable{},
		timers:       timerwheel.New(),
		maxTimeoutMs: cfg.maxTimeoutMs,
		errLimiter:   catrate.NewLimiter(map[time.Duration]int{time.Second: 5}),
	}

	if err := p.Add(readFd, EventRead); err != nil {
		closeWakeFd(readFd, writeFd)
		_ = p.Close()
		return nil, fmt.Errorf("iomanager: register wake fd: %w", err)
	}

	allOpts := make([]scheduler.Option, 0, len(schedulerOpts)+1)
	allOpts = append(allOpts, schedulerOpts...)
	allOpts = append(allOpts, scheduler.WithHooks(scheduler.Hooks{
		Idle:        m.idle,
		Tickle:      m.tickle,
		ReadyToStop: m.readyToStop,
	}))
	m.Scheduler = scheduler.New(allOpts...)
	return m, nil
}

// AddEvent registers interest in dir on fd (spec.md §4.6). If handler
// is nil, the implicit handler resumes the calling fiber — the caller
// is expected to call AddEvent and then fiber.Yield from inside that
// same fiber, the fiber-blocking-I/O idiom spec.md §4.6 names; this
// call suppresses that fiber's auto-requeue on its next yield (see
// fiber.Fiber.SuppressRequeue) since readiness, not the scheduler, is
// what will resume it. Fails with ErrDirectionRegistered if dir is
// already registered on fd (spec.md §3's invariant).
func (m *IOManager) AddEvent(fd int, dir Direction, handler Handler) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	if handler == nil {
		f := fiber.GetThis()
		f.SuppressRequeue()
		handler = f
	}

	r := m.table.getOrCreate(fd)
	r.mu.Lock()
	if r.bits&dir != 0 {
		r.mu.Unlock()
		return ErrDirectionRegistered
	}
	oldBits := r.bits
	r.bits |= dir
	r.h[directionIndex(dir)] = handler
	newBits := r.bits
	r.mu.Unlock()

	var err error
	if oldBits == 0 {
		err = m.poller.Add(fd, directionEvents(newBits))
	} else {
		err = m.poller.Modify(fd, directionEvents(newBits))
	}
	if err != nil {
		r.mu.Lock()
		r.bits = oldBits
		r.h[directionIndex(dir)] = nil
		r.mu.Unlock()
		return err
	}
	m.pending.Add(1)
	return nil
}

// DelEvent unregisters dir on fd without firing its handler. Idempotent:
// unregistering a direction that isn't registered (or an fd never
// registered at all) is a no-op, not an error, matching this project's
// supplemented DelEvent semantics.
func (m *IOManager) DelEvent(fd int, dir Direction) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	r := m.table.get(fd)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.bits&dir == 0 {
		r.mu.Unlock()
		return nil
	}
	r.bits &^= dir
	r.h[directionIndex(dir)] = nil
	remaining := r.bits
	r.mu.Unlock()

	if err := m.rearm(fd, remaining); err != nil {
		return err
	}
	m.pending.Add(-1)
	return nil
}

// CancelEvent unregisters dir on fd and fires its handler exactly once
// (spec.md §4.6), used to wake a fiber blocked on a fd that's being
// closed.
func (m *IOManager) CancelEvent(fd int, dir Direction) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	r := m.table.get(fd)
	if r == nil {
		return ErrDirectionNotRegistered
	}
	r.mu.Lock()
	if r.bits&dir == 0 {
		r.mu.Unlock()
		return ErrDirectionNotRegistered
	}
	handler := r.h[directionIndex(dir)]
	r.bits &^= dir
	r.h[directionIndex(dir)] = nil
	remaining := r.bits
	r.mu.Unlock()

	if err := m.rearm(fd, remaining); err != nil {
		return err
	}
	m.pending.Add(-1)
	if handler != nil {
		if err := m.Scheduler.Submit(handler, scheduler.AnyAffinity); err != nil {
			rtlog.Errf(err, "iomanager: failed to schedule canceled handler for fd %d", fd)
		}
	}
	return nil
}

// CancelAll cancels both directions on fd (spec.md §4.6).
func (m *IOManager) CancelAll(fd int) {
	_ = m.CancelEvent(fd, DirRead)
	_ = m.CancelEvent(fd, DirWrite)
}

// AddTimer registers a timer with the manager's heap, firing callback
// on the base scheduler (AnyAffinity) when due.
func (m *IOManager) AddTimer(delay time.Duration, callback func(), recurring bool) (*timerwheel.Timer, error) {
	return m.timers.AddTimer(delay, callback, recurring)
}

func (m *IOManager) rearm(fd int, remaining Direction) error {
	if remaining == 0 {
		return m.poller.Remove(fd)
	}
	return m.poller.Modify(fd, directionEvents(remaining))
}

func directionEvents(d Direction) IOEvents {
	var e IOEvents
	if d&DirRead != 0 {
		e |= EventRead
	}
	if d&DirWrite != 0 {
		e |= EventWrite
	}
	return e
}

// tickle interrupts a blocked poller wait (spec.md §4.6: "writes one
// byte to the wake fd"). Signature matches scheduler.Hooks.Tickle; the
// *scheduler.Scheduler argument is unused since m already embeds it.
func (m *IOManager) tickle(*scheduler.Scheduler) {
	if err := writeWake(m.wakeWriteFd); err != nil {
		rtlog.Errf(err, "iomanager: tickle write failed")
	}
}

// idle is the overridden Scheduler hook (spec.md §4.6): wait on the
// multiplexer for up to the next timer deadline (capped at
// maxTimeoutMs), dispatch ready fds, then schedule fired timers.
func (m *IOManager) idle(s *scheduler.Scheduler, workerIndex int) {
	timeout := m.maxTimeoutMs
	if d, ok := m.timers.NextTimeout(); ok {
		if ms := int(d.Milliseconds()); ms < timeout {
			timeout = ms
		}
	}

	if err := m.poller.Wait(timeout, m.dispatch); err != nil {
		if _, allowed := m.errLimiter.Allow("poll-wait-error"); allowed {
			rtlog.Errf(err, "iomanager: poll wait failed")
		}
	}

	for _, t := range m.timers.ListExpired() {
		if err := s.Submit(t.Fire, scheduler.AnyAffinity); err != nil {
			rtlog.Errf(err, "iomanager: failed to schedule fired timer %d", t.ID())
		}
	}
}

// readyToStop is the ReadyToStop hook: STOPPING may only complete once
// no timers remain and the pending-event counter is zero, in addition
// to the base Scheduler's own empty-queue check (spec.md §4.6).
func (m *IOManager) readyToStop(*scheduler.Scheduler) bool {
	return m.timers.Len() == 0 && m.pending.Load() == 0
}

// dispatch is the poller callback: for each direction registered on fd
// that's also ready, clear the bit and schedule its handler (spec.md
// §4.6). EventError/EventHangup are folded into both directions, so a
// fiber blocked on a closing fd still gets woken.
func (m *IOManager) dispatch(fd int, events IOEvents) {
	if fd == m.wakeReadFd {
		drainWake(m.wakeReadFd)
		return
	}

	if events.has(EventError) || events.has(EventHangup) {
		events |= EventRead | EventWrite
	}

	r := m.table.get(fd)
	if r == nil {
		return
	}

	var fired []Handler
	r.mu.Lock()
	if events.has(EventRead) && r.bits&DirRead != 0 {
		fired = append(fired, r.h[directionIndex(DirRead)])
		r.bits &^= DirRead
		r.h[directionIndex(DirRead)] = nil
	}
	if events.has(EventWrite) && r.bits&DirWrite != 0 {
		fired = append(fired, r.h[directionIndex(DirWrite)])
		r.bits &^= DirWrite
		r.h[directionIndex(DirWrite)] = nil
	}
	remaining := r.bits
	r.mu.Unlock()

	if err := m.rearm(fd, remaining); err != nil {
		rtlog.Errf(err, "iomanager: rearm failed for fd %d", fd)
	}

	for _, h := range fired {
		m.pending.Add(-1)
		if err := m.Scheduler.Submit(h, scheduler.AnyAffinity); err != nil {
			rtlog.Errf(err, "iomanager: failed to schedule ready handler for fd %d", fd)
		}
	}
}

// Close releases the poller and wake fd. Call only after Stop has
// returned.
func (m *IOManager) Close() error {
	closeWakeFd(m.wakeReadFd, m.wakeWriteFd)
	return m.poller.Close()
}
