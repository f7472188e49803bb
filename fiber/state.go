package fiber

import "sync/atomic"

// State is a fiber's position in the READY -> RUNNING -> TERM lifecycle
// (spec.md §3: no explicit SUSPEND state — a yielded fiber is READY).
type State uint32

const (
	// StateReady is the initial state, and the state a fiber returns to
	// after yielding.
	StateReady State = iota
	// StateRunning is set for the single fiber executing on its thread.
	StateRunning
	// StateTerm is set once the entry returns or panics; terminal until
	// Reset rewinds the fiber to StateReady.
	StateTerm
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateTerm:
		return "TERM"
	default:
		return "UNKNOWN"
	}
}

// fastState is a lock-free CAS state machine, the same shape as the
// teacher's FastState: a bare atomic word with Load/Store/CAS and no
// validation of transition legality (callers decide what's legal).
type fastState struct {
	v atomic.Uint32
}

func newFastState(initial State) *fastState {
	s := &fastState{}
	s.v.Store(uint32(initial))
	return s
}

func (s *fastState) Load() State {
	return State(s.v.Load())
}

func (s *fastState) Store(state State) {
	s.v.Store(uint32(state))
}

func (s *fastState) CAS(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
