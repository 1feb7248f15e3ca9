package session

import "fmt"

// State is the lifecycle phase of a session.
type State int

const (
	// Idle accepts a new submission.
	Idle State = iota
	// Preparing is writing the workspace file and launching the sandbox.
	Preparing
	// Running has a live sandbox process.
	Running
	// Terminating is tearing the current run down.
	Terminating
	// Closed accepts nothing further.
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	Idle:        {Preparing, Closed},
	Preparing:   {Running, Idle, Closed},
	Running:     {Terminating},
	Terminating: {Idle, Closed},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
