package consumer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies consumer failures.
type ErrorKind string

// Error kinds
const (
	ErrMissingRequirement       ErrorKind = "MISSING_REQUIREMENT"
	ErrLaunchFailure            ErrorKind = "LAUNCH_FAILURE"
	ErrDeviceAccessFailure      ErrorKind = "DEVICE_ACCESS_FAILURE"
	ErrGraphConstructionFailure ErrorKind = "GRAPH_CONSTRUCTION_FAILURE"
	ErrEngineRuntimeFailure     ErrorKind = "ENGINE_RUNTIME_FAILURE"
	ErrTerminationFailure       ErrorKind = "TERMINATION_FAILURE"
	ErrWorkerExited             ErrorKind = "WORKER_EXITED"
	ErrInvalidConfig            ErrorKind = "INVALID_CONFIG"
)

// Error is a consumer failure. Missing is set for ErrMissingRequirement and
// Detail carries captured worker output when there is any.
type Error struct {
	Kind    ErrorKind
	Message string
	Missing []string
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Missing, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a consumer error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func missingError(missing []string) *Error {
	return &Error{
		Kind:    ErrMissingRequirement,
		Message: "requirements not met",
		Missing: missing,
	}
}

// IsKind reports whether err is a consumer error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// KindOf returns the kind of a consumer error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
