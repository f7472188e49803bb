package fthread

import "errors"

// ErrAlreadyJoined is returned by Join if called more than once.
var ErrAlreadyJoined = errors.New("fthread: already joined")
