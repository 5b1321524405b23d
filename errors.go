package copyscheduler

import (
	"errors"
	"fmt"
)

// Standard errors returned by lifecycle operations.
var (
	// ErrNotStarted reports that the scheduler has not completed Startup. No
	// function in this package returns it: submissions made before Startup
	// are queued rather than rejected.
	ErrNotStarted = errors.New("copyscheduler: scheduler has not been started")

	// ErrAlreadyStarted is returned by Startup when called on a scheduler
	// that is already Running.
	ErrAlreadyStarted = errors.New("copyscheduler: scheduler is already started")

	// ErrTerminated is returned by Startup when called on a scheduler whose
	// Shutdown has begun or completed.
	ErrTerminated = errors.New("copyscheduler: scheduler has been shut down")

	// ErrInvalidConfig is wrapped by configuration validation failures,
	// which New surfaces by panicking with the wrapped error.
	ErrInvalidConfig = errors.New("copyscheduler: invalid configuration")
)

// SchedulerFailureCode enumerates the failures the scheduler itself can
// produce, as opposed to failures surfaced transparently from a Callback.
type SchedulerFailureCode int

const (
	// FailureNone is the zero value; never returned as an actual failure.
	FailureNone SchedulerFailureCode = iota

	// FailureTimeout indicates a request was not admitted within its
	// configured schedulerTimeout.
	FailureTimeout

	// FailureShutdown indicates a request observed scheduler shutdown
	// before producing an outcome, either while still queued or because
	// its in-flight callback was cancelled by the shared shutdown signal.
	FailureShutdown
)

// String implements fmt.Stringer.
func (c SchedulerFailureCode) String() string {
	switch c {
	case FailureTimeout:
		return "Timeout"
	case FailureShutdown:
		return "Shutdown"
	default:
		return "None"
	}
}

// Error implements the error interface, so a SchedulerFailureCode can be
// returned and compared directly via errors.Is.
func (c SchedulerFailureCode) Error() string {
	return "copyscheduler: " + c.String()
}

// CallbackFailedError transparently wraps an error returned (or a panic
// recovered) from a Callback. The original error is always preserved and
// reachable via errors.Unwrap / errors.As.
type CallbackFailedError struct {
	// Err is the original error returned by, or synthesized from a panic
	// recovered from, the callback.
	Err error
}

// Error implements the error interface.
func (e *CallbackFailedError) Error() string {
	return fmt.Sprintf("copyscheduler: callback failed: %v", e.Err)
}

// Unwrap allows errors.Is / errors.As to reach the original callback error.
func (e *CallbackFailedError) Unwrap() error {
	return e.Err
}

// callbackPanicError wraps a value recovered from a panicking Callback.
type callbackPanicError struct {
	value any
}

func (e *callbackPanicError) Error() string {
	return fmt.Sprintf("copyscheduler: callback panicked: %v", e.value)
}
