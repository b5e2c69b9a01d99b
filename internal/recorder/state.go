package recorder

import (
	"fmt"
	"slices"
)

// State is the lifecycle state of a camera's recording.
type State int

const (
	// StateIdle means no capture process is running.
	StateIdle State = iota
	// StateRecording means a clip is being written.
	StateRecording
	// StateStoppingDelayed means detection ended and the stop timer is armed.
	StateStoppingDelayed
	// StateStopping means the stop protocol is running.
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStoppingDelayed:
		return "stopping-delayed"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the allowed target states for each state. Entering the
// same state is only legal where a self-loop is listed.
var transitions = map[State][]State{
	StateIdle:            {StateRecording},
	StateRecording:       {StateStoppingDelayed, StateStopping, StateIdle},
	StateStoppingDelayed: {StateRecording, StateStoppingDelayed, StateStopping, StateIdle},
	StateStopping:        {StateIdle},
}

// canTransition reports whether from -> to is in the transition table
func canTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}
