//go:build linux

package iomanager

import "golang.org/x/sys/unix"

// createWakeFd creates an eventfd used to interrupt the poller from
// tickle() and on submissions made while a worker is blocked in idle
// (spec.md §4.6: "a self-pipe or eventfd used to interrupt the
// multiplexer"). Read and write ends are the same fd.
func createWakeFd() (readFd, writeFd int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func closeWakeFd(readFd, writeFd int) {
	_ = unix.Close(readFd)
}

func writeWake(writeFd int) error {
	var one [8]byte
	one[0] = 1
	_, err := unix.Write(writeFd, one[:])
	return err
}

func drainWake(readFd int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(readFd, buf[:]); err != nil {
			return
		}
	}
}
