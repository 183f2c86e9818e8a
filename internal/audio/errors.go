package audio

import (
	"errors"
	"fmt"
)

// ErrCapture is matched by every error produced by a capture session.
var ErrCapture = errors.New("capture error")

var (
	// ErrEmptyBuffer is returned by Finalize when no frame was appended.
	ErrEmptyBuffer = fmt.Errorf("%w: no audio frames captured", ErrCapture)

	// ErrClosedSession is returned when a finalized or closed capture is used again.
	ErrClosedSession = fmt.Errorf("%w: capture session is closed", ErrCapture)

	// ErrCaptureLimit is returned when a frame would exceed the recording limit.
	ErrCaptureLimit = fmt.Errorf("%w: recording duration limit reached", ErrCapture)
)

// SampleRateMismatchError reports a frame whose rate differs from the first frame.
type SampleRateMismatchError struct {
	Expected int
	Got      int
}

func (e *SampleRateMismatchError) Error() string {
	return fmt.Sprintf("capture error: sample rate mismatch: session is %d Hz, frame is %d Hz", e.Expected, e.Got)
}

// Is makes the error match ErrCapture.
func (e *SampleRateMismatchError) Is(target error) bool {
	return target == ErrCapture
}

// InvalidFrameError reports a structurally broken frame.
type InvalidFrameError struct {
	Reason string
}

func (e *InvalidFrameError) Error() string {
	return "capture error: invalid frame: " + e.Reason
}

// Is makes the error match ErrCapture.
func (e *InvalidFrameError) Is(target error) bool {
	return target == ErrCapture
}

// EncodeError reports a buffer that cannot be serialized.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode error: %v", e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
