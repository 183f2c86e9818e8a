package stage

import "fmt"

// Status values used when a failure has no transport status code.
const (
	StatusTimeout   = "timeout"
	StatusTransport = "transport"
	StatusDecode    = "decode"
)

// StageError reports a non-success response from a remote stage.
type StageError struct {
	Stage  Stage
	Status string // HTTP status code or one of the Status* values
	Body   string
	Err    error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s stage failed with status %s", e.Stage, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// EmptyResultError reports a successful response whose payload is empty.
type EmptyResultError struct {
	Stage Stage
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%s stage returned an empty result", e.Stage)
}

// TimeoutError reports a stage call that exceeded its deadline.
// It is carried inside a StageError with Status "timeout".
type TimeoutError struct {
	Stage Stage
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s stage timed out", e.Stage)
}

// NewTimeoutError builds the StageError used for an expired stage deadline.
func NewTimeoutError(s Stage) *StageError {
	return &StageError{Stage: s, Status: StatusTimeout, Err: &TimeoutError{Stage: s}}
}
