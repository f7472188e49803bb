package scheduler

import "sync/atomic"

// State is the scheduler's lifecycle position (spec.md §4.4).
type State uint32

const (
	StateNew State = iota
	StateRunning
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// schedulerState is the same bare-CAS shape as fiber.fastState (see
// fiber/state.go, itself grounded on eventloop/state.go's FastState);
// duplicated rather than shared because the two enums have unrelated
// domains and transition rules.
type schedulerState struct {
	v atomic.Uint32
}

func newSchedulerState(initial State) *schedulerState {
	s := &schedulerState{}
	s.v.Store(uint32(initial))
	return s
}

func (s *schedulerState) Load() State           { return State(s.v.Load()) }
func (s *schedulerState) Store(v State)         { s.v.Store(uint32(v)) }
func (s *schedulerState) CAS(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
