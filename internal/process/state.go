package process

import "time"

// State represents the lifecycle state of a supervised worker or of the
// consumer that owns it.
type State string

// Worker states.
const (
	StateIdle     State = "idle"     // Not running
	StateStarting State = "starting" // Being started
	StateRunning  State = "running"  // Active
	StateStopping State = "stopping" // Being stopped
	StateFailed   State = "failed"   // Failed to start or died while running
)

var transitions = map[State][]State{
	StateIdle:     {StateStarting},
	StateStarting: {StateRunning, StateFailed, StateIdle},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateIdle},
	StateFailed:   {StateStarting, StateIdle},
}

// CanTransition reports whether moving from one state to another is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Info is a point-in-time snapshot of a launched worker.
type Info struct {
	PID       int
	Argv      []string
	StartedAt time.Time
	Exited    bool
	ExitCode  int
}
