//go:build linux

package iomanager

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// poller wraps epoll. Unlike the teacher's FastPoller, it does not keep
// its own fds array or per-fd callbacks: IOManager's registration table
// (registration.go) already owns that state (spec.md §3's FD event
// registration table lives one level up, in the manager, not the raw
// multiplexer), so the poller here is reduced to the bare epoll_create/
// ctl/wait wrapper plus version-based stale-poll detection, the same
// mechanism the teacher's FastPoller.PollIO uses to discard results that
// raced a concurrent registration change.
type poller struct {
	epfd     int32
	version  atomic.Uint64
	eventBuf [256]unix.EpollEvent
	closed   atomic.Bool
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &poller{epfd: int32(epfd)}, nil
}

func (p *poller) Close() error {
	p.closed.Store(true)
	return unix.Close(int(p.epfd))
}

func (p *poller) Add(fd int, events IOEvents) error {
	p.version.Add(1)
	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	})
}

func (p *poller) Modify(fd int, events IOEvents) error {
	p.version.Add(1)
	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	})
}

func (p *poller) Remove(fd int) error {
	p.version.Add(1)
	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks for up to timeoutMs (negative means indefinitely) and
// invokes dispatch once per ready fd. Transient EINTR is not retried
// here: it ends the pass with a nil error and no dispatch, and the
// worker loop's next idle call enters the wait again (spec.md §7).
func (p *poller) Wait(timeoutMs int, dispatch func(fd int, events IOEvents)) error {
	if p.closed.Load() {
		return ErrClosed
	}
	v := p.version.Load()
	n, err := unix.EpollWait(int(p.epfd), p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	if p.version.Load() != v {
		// A registration changed mid-wait; the results may describe fds
		// we've already unregistered. Discard rather than risk firing a
		// handler that was just removed.
		return nil
	}
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		dispatch(fd, epollToEvents(p.eventBuf[i].Events))
	}
	return nil
}

func eventsToEpoll(events IOEvents) uint32 {
	var out uint32
	if events.has(EventRead) {
		out |= unix.EPOLLIN
	}
	if events.has(EventWrite) {
		out |= unix.EPOLLOUT
	}
	return out
}

func epollToEvents(e uint32) IOEvents {
	var out IOEvents
	if e&unix.EPOLLIN != 0 {
		out |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		out |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		out |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		out |= EventHangup
	}
	return out
}
