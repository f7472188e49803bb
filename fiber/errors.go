package fiber

import "errors"

var (
	// ErrNotResumable is returned by Resume when the fiber's state is not
	// READY (spec.md §3: "a fiber in TERM must not be resumed"; the same
	// precondition excludes resuming an already-RUNNING fiber).
	ErrNotResumable = errors.New("fiber: not resumable")
	// ErrNotYieldable is returned by Yield when called from any goroutine
	// other than the fiber's own, or when the fiber isn't RUNNING.
	ErrNotYieldable = errors.New("fiber: not yieldable")
	// ErrNotResettable is returned by Reset outside the READY-never-run
	// or TERM states.
	ErrNotResettable = errors.New("fiber: not resettable")
	// ErrNilEntry is returned by New and Reset when given a nil entry.
	ErrNilEntry = errors.New("fiber: nil entry")
)
