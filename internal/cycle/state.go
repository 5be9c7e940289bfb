package cycle

import "fmt"

type State int32

const (
	StateIdle State = iota
	StateArmed
	StateRunning
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var validTransitions = map[State][]State{
	StateIdle:        {StateArmed},
	StateArmed:       {StateRunning, StateTerminating},
	StateRunning:     {StateTerminating},
	StateTerminating: {},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
