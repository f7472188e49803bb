//go:build darwin

package iomanager

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// createWakeFd creates a self-pipe (spec.md §4.6: "a self-pipe ...
// elsewhere", i.e. wherever eventfd isn't available) with both ends
// non-blocking and close-on-exec. golang.org/x/sys/unix has no Pipe2 on
// darwin, so this uses the same syscall.Pipe + SetNonblock + CloseOnExec
// sequence as the teacher's own Darwin wake-fd.
func createWakeFd() (readFd, writeFd int, err error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	cleanup := func() {
		_ = syscall.Close(fds[0])
		_ = syscall.Close(fds[1])
	}
	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return -1, -1, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func closeWakeFd(readFd, writeFd int) {
	_ = unix.Close(readFd)
	if writeFd != readFd {
		_ = unix.Close(writeFd)
	}
}

func writeWake(writeFd int) error {
	_, err := unix.Write(writeFd, []byte{1})
	return err
}

func drainWake(readFd int) {
	var buf [64]byte
	for {
		if _, err := unix.Read(readFd, buf[:]); err != nil {
			return
		}
	}
}
