package scheduler

import "errors"

var (
	// ErrTerminated is returned by Submit once the scheduler has fully
	// stopped (spec.md §4.4: legal in any state except TERMINATED).
	ErrTerminated = errors.New("scheduler: terminated")
	// ErrAlreadyStarted is returned by Start if called more than once.
	ErrAlreadyStarted = errors.New("scheduler: already started")
	// ErrNotRunning is returned by Stop if the scheduler was never
	// started.
	ErrNotRunning = errors.New("scheduler: not running")
	// ErrNilItem is returned by Submit given a nil fiber or callable.
	ErrNilItem = errors.New("scheduler: nil item")
)
