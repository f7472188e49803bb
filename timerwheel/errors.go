package timerwheel

import "errors"

// ErrNilCallback is returned by AddTimer given a nil callback.
var ErrNilCallback = errors.New("timerwheel: nil callback")
