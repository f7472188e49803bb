package scheduler

import "github.com/wenjin0701/fiber-core/fiber"

// options holds configuration resolved at construction, the same
// functional-options shape as the teacher's loopOptions/LoopOption
// (eventloop/options.go).
type options struct {
	name         string
	threads      int
	useCaller    bool
	stackSize    int
	onIdle       func(*Scheduler, int)
	onTickle     func(*Scheduler)
	readyToStop  func(*Scheduler) bool
}

// Option configures a Scheduler.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithName sets the scheduler's name, used as a prefix for worker thread
// names.
func WithName(name string) Option {
	return optionFunc(func(o *options) { o.name = name })
}

// WithThreads sets the worker count (spec.md §4.4's thread_count).
func WithThreads(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.threads = n
		}
	})
}

// WithUseCaller makes the thread that calls Start count as one of the
// workers (spec.md §4.4's use_caller); only threads-1 new OS threads are
// spawned, and the calling thread participates once Stop is called on
// it.
func WithUseCaller(enabled bool) Option {
	return optionFunc(func(o *options) { o.useCaller = enabled })
}

// WithStackSize sets the stack size recorded against transient fibers
// the scheduler wraps plain callables in.
func WithStackSize(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.stackSize = n
		}
	})
}

// Hooks overrides tickle()/idle() (spec.md §4.4/§4.6). Idle, if set,
// replaces the default condvar sleep; it's called with the mutex
// released and the worker's index, and should return once there's new
// work worth re-scanning for (or stop is imminent). Tickle, if set,
// replaces the default cond.Broadcast.
//
// This exists for iomanager, which embeds a *Scheduler and needs to
// specialize both to drive a multiplexer wait instead of a plain
// condvar sleep. Go has no virtual-method override, so this
// composition-based injection is the stand-in for the spec's subclass
// hook.
//
// ReadyToStop, if set, adds an extra condition the worker loop's
// STOPPING-exit check must satisfy beyond "queue empty": iomanager uses
// it to also require its timer heap be empty and its pending-event
// counter be zero (spec.md §4.6's stop-quiescence rule), since the base
// Scheduler's own exit check has no notion of either.
type Hooks struct {
	Idle        func(s *Scheduler, workerIndex int)
	Tickle      func(s *Scheduler)
	ReadyToStop func(s *Scheduler) bool
}

// WithHooks installs Hooks overriding the scheduler's idle/tickle/
// stop-quiescence behavior.
func WithHooks(h Hooks) Option {
	return optionFunc(func(o *options) {
		o.onIdle = h.Idle
		o.onTickle = h.Tickle
		o.readyToStop = h.ReadyToStop
	})
}

func resolveOptions(opts []Option) *options {
	cfg := &options{
		name:      "scheduler",
		threads:   1,
		stackSize: fiber.DefaultStackSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}
