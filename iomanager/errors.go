package iomanager

import "errors"

var (
	// ErrFDOutOfRange is returned by AddEvent/DelEvent/CancelEvent for a
	// negative fd. There is no upper bound: the registration table grows
	// to fit any non-negative fd.
	ErrFDOutOfRange = errors.New("iomanager: fd out of range")
	// ErrDirectionRegistered is returned by AddEvent when the requested
	// direction is already registered on that fd (spec.md §3: "addEvent
	// on an already-registered direction is an error").
	ErrDirectionRegistered = errors.New("iomanager: direction already registered")
	// ErrDirectionNotRegistered is returned by CancelEvent when the
	// requested direction isn't registered (DelEvent is idempotent and
	// does not return this; see DelEvent's doc comment).
	ErrDirectionNotRegistered = errors.New("iomanager: direction not registered")
	// ErrClosed is returned by the poller's Wait once the manager's poller
	// has been closed (after Stop completes). AddEvent/DelEvent/CancelEvent
	// do not check for this; after Close they report whatever error the
	// underlying epoll/kqueue call on the closed descriptor returns.
	ErrClosed = errors.New("iomanager: closed")
)
