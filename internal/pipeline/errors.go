package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when an operation does not fit the current state.
	ErrInvalidTransition = errors.New("invalid pipeline state transition")

	// ErrNotCapturing is returned by Append outside the Capturing state.
	ErrNotCapturing = fmt.Errorf("%w: run is not capturing", ErrInvalidTransition)

	// ErrCanceled is recorded on runs aborted by the caller.
	ErrCanceled = errors.New("pipeline run canceled")
)

// FaultError records an unexpected failure caught at the orchestrator
// boundary, such as a recovered panic or an untyped collaborator error.
type FaultError struct {
	State   State
	Message string
	Err     error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("unexpected fault while %s: %s", e.State, e.Message)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}
