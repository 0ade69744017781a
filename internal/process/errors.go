package process

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCommand is returned by Launch when no argv is given.
var ErrEmptyCommand = errors.New("empty command")

// LaunchError reports a worker that could not be started or exited during
// the startup probe. Output holds the last captured output lines.
type LaunchError struct {
	Argv     []string
	ExitCode int // -1 when the process never started
	Output   []string
	Err      error
}

func (e *LaunchError) Error() string {
	var b strings.Builder
	name := "<none>"
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, "%s exited during startup (exit code %d)", name, e.ExitCode)
	} else {
		fmt.Fprintf(&b, "failed to start %s", name)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Output) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(e.Output, "\n"))
	}
	return b.String()
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// TerminateError reports a failure to deliver a stop or kill signal.
type TerminateError struct {
	PID    int
	Forced bool
	Err    error
}

func (e *TerminateError) Error() string {
	if e.Forced {
		return fmt.Sprintf("kill process %d: %v", e.PID, e.Err)
	}
	return fmt.Sprintf("stop process %d: %v", e.PID, e.Err)
}

func (e *TerminateError) Unwrap() error {
	return e.Err
}
