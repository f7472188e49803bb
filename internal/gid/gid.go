// Package gid gives packages in this module a cheap, goroutine-local
// identity, used wherever the spec calls for a "thread-local" slot but the
// actual execution unit is a goroutine rather than an OS thread.
package gid

import "runtime"

// Current returns the calling goroutine's runtime-assigned id.
//
// This parses the "goroutine NNN [...]" header of runtime.Stack(false),
// the same technique the teacher package uses for its own loop-affinity
// check (there is no supported API for this; it is stable enough across
// Go releases to rely on for a debug-adjacent identity check, not for
// anything safety-critical).
func Current() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
