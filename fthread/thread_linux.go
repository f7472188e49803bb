//go:build linux

package fthread

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func osThreadID() int32 {
	return int32(unix.Gettid())
}

// setThreadName is best-effort, per spec.md §4.3 ("applies the name
// (best-effort)"): a failed prctl is not surfaced to the caller.
func setThreadName(name string) {
	if name == "" {
		return
	}
	b, err := unix.BytePtrFromString(name)
	if err != nil {
		return
	}
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(b)), 0, 0, 0)
}
