package system

import (
	"errors"
	"fmt"
	"slices"
)

// SystemState is the state of one process run. A run is one bus session:
// Stopped and the Error reached from Stopping are final.
type SystemState int

const (
	StateInitializing SystemState = iota
	StateConfiguring              // opening the bus session
	StateOperational              // cyclic loop armed or running
	StateStopping
	StateStopped
	StateError
)

var stateNames = [...]string{
	StateInitializing: "INITIALIZING",
	StateConfiguring:  "CONFIGURING",
	StateOperational:  "OPERATIONAL",
	StateStopping:     "STOPPING",
	StateStopped:      "STOPPED",
	StateError:        "ERROR",
}

func (s SystemState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

func (s SystemState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[SystemState][]SystemState{
	StateInitializing: {StateConfiguring, StateStopping, StateError},
	StateConfiguring:  {StateOperational, StateStopping, StateError},
	StateOperational:  {StateStopping, StateError},
	StateStopping:     {StateStopped, StateError},
	// Fehler beim Öffnen oder im Zyklus: nur noch aufräumen
	StateError: {StateStopping},
}

func ValidateTransition(from, to SystemState) error {
	if !slices.Contains(validTransitions[from], to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
