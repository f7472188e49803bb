// Package fthread wraps an OS-thread-pinned goroutine with a stable
// numeric identity and a thread-local ("goroutine-local") accessor,
// realizing spec.md §4.3. Scheduler workers are each an fthread.Thread,
// including an I/O manager's workers, whose idle hook runs the
// epoll/kqueue wait (the teacher's own loop run() likewise pins with
// runtime.LockOSThread before touching its poller).
package fthread

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/wenjin0701/fiber-core/internal/gid"
)

// lockOSThreadForLife pins the calling goroutine to its OS thread for
// the remainder of its life. Unlike the teacher's lazy, deferred-unlock
// pattern (locked only once the I/O poller is needed, unlocked on loop
// exit), an fthread.Thread locks immediately and never unlocks: its
// goroutine IS the OS thread's dedicated occupant for its whole life,
// so runtime.UnlockOSThread would only matter if the goroutine outlived
// its usefulness as a worker, which it never does here.
func lockOSThreadForLife() {
	runtime.LockOSThread()
}

// maxNameLen mirrors Linux's pthread name limit (16 bytes including the
// terminating NUL, so 15 usable bytes), the
// platform spec.md §3 calls out by name ("truncated to 15 bytes").
const maxNameLen = 15

var (
	currentMu sync.RWMutex
	current   = map[uint64]*Thread{}
)

// Thread is a named, OS-thread-pinned goroutine with a numeric identity.
type Thread struct {
	id     int32
	name   string
	done   chan struct{}
	joined atomic.Bool
}

// ID returns the OS-reported thread id (gettid on Linux; a
// process-unique synthetic id elsewhere, since the BSD/Darwin family
// exposes no portable gettid without cgo — see thread_darwin.go).
func (t *Thread) ID() int32 { return t.id }

// Name returns the (possibly truncated) name passed to Start.
func (t *Thread) Name() string { return t.name }

// Start spawns a goroutine, locks it to its OS thread for its entire
// life, applies name (best-effort, truncated to maxNameLen), publishes
// the thread's self-pointer (so GetThis called from inside entry
// resolves immediately), then runs entry. Start does not return until
// that publication has happened (the spec's start-synchronization
// latch).
func Start(name string, entry func(*Thread)) *Thread {
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	t := &Thread{
		name: name,
		done: make(chan struct{}),
	}
	ready := make(chan struct{})
	go func() {
		defer close(t.done)
		lockOSThreadForLife()
		t.id = osThreadID()
		setThreadName(name)

		g := gid.Current()
		currentMu.Lock()
		current[g] = t
		currentMu.Unlock()
		defer func() {
			currentMu.Lock()
			delete(current, g)
			currentMu.Unlock()
		}()

		close(ready)
		entry(t)
	}()
	<-ready
	return t
}

// Join blocks until the thread's entry has returned. It must be called
// at most once per Thread.
func (t *Thread) Join() error {
	if t.joined.Swap(true) {
		return ErrAlreadyJoined
	}
	<-t.done
	return nil
}

// GetThis returns the Thread wrapper for the calling goroutine, or nil
// if the calling goroutine was neither started via Start nor registered
// through AssociateCurrent (spec.md §4.3
// scopes GetThis to threads created through this wrapper; ordinary
// goroutines have no OS-thread-pinned identity to report).
func GetThis() *Thread {
	g := gid.Current()
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current[g]
}

// AssociateCurrent registers the calling goroutine as reporting t from
// GetThis, until the returned release func is called. t may be nil, in
// which case this is a no-op (nothing to associate) rather than
// clearing any existing registration.
//
// This exists for the fiber package: a fiber's entry runs on its own
// dedicated goroutine (fiber.Fiber.run), distinct from whichever
// Thread's goroutine called Resume, so that goroutine never registers
// itself here on its own. fiber.Resume captures the calling goroutine's
// Thread and fiber.Fiber.run/yieldSelf call AssociateCurrent around
// each life/resumption so that GetThis, called from inside task code
// running on the fiber's goroutine, reports the logical worker thread
// actually driving it (spec.md §8 S4's affinity-visibility
// requirement), restoring whatever was associated before on release.
func AssociateCurrent(t *Thread) (release func()) {
	if t == nil {
		return func() {}
	}
	g := gid.Current()
	currentMu.Lock()
	prev, hadPrev := current[g]
	current[g] = t
	currentMu.Unlock()
	return func() {
		currentMu.Lock()
		if hadPrev {
			current[g] = prev
		} else {
			delete(current, g)
		}
		currentMu.Unlock()
	}
}
