package stage

import (
	"errors"
	"strings"
	"testing"
)

func TestStageErrorMessage(t *testing.T) {
	err := &StageError{Stage: STT, Status: "500", Body: `{"error":"boom"}`}

	msg := err.Error()
	if !strings.Contains(msg, "stt") || !strings.Contains(msg, "500") || !strings.Contains(msg, "boom") {
		t.Errorf("Error message missing details: %q", msg)
	}
}

func TestNewTimeoutError(t *testing.T) {
	err := NewTimeoutError(Translate)

	if err.Status != StatusTimeout {
		t.Errorf("Expected status %q, got %q", StatusTimeout, err.Status)
	}

	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatal("Expected StageError to wrap a TimeoutError")
	}
	if timeout.Stage != Translate {
		t.Errorf("Expected stage %q, got %q", Translate, timeout.Stage)
	}
}

func TestEmptyResultError(t *testing.T) {
	var err error = &EmptyResultError{Stage: TTS}

	var empty *EmptyResultError
	if !errors.As(err, &empty) || empty.Stage != TTS {
		t.Errorf("Expected EmptyResultError for tts, got %v", err)
	}
	if !strings.Contains(err.Error(), "tts") {
		t.Errorf("Error message missing stage: %q", err.Error())
	}
}
