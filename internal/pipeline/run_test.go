package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/skypro1111/voice-translate-service/internal/audio"
	"github.com/skypro1111/voice-translate-service/internal/stage"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{InputLanguage: "en-IN", OutputLanguage: "hi-IN"}, false},
		{"missing input", Config{OutputLanguage: "hi-IN"}, true},
		{"missing output", Config{InputLanguage: "en-IN"}, true},
		{"negative timeout", Config{InputLanguage: "en-IN", OutputLanguage: "hi-IN", StageTimeout: -time.Second}, true},
		{"negative capture limit", Config{InputLanguage: "en-IN", OutputLanguage: "hi-IN", MaxCaptureDuration: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunInfoErrorKinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   string
		wantStage  string
		wantStatus string
	}{
		{"stage status", &stage.StageError{Stage: stage.Translate, Status: "500"}, "stage", "translate", "500"},
		{"timeout", stage.NewTimeoutError(stage.STT), "timeout", "stt", "timeout"},
		{"empty", &stage.EmptyResultError{Stage: stage.TTS}, "empty_result", "tts", ""},
		{"canceled", canceled("translate", errors.New("context canceled")), "canceled", "", ""},
		{"capture", audio.ErrEmptyBuffer, "capture", "", ""},
		{"encode", &audio.EncodeError{Err: errors.New("bad rate")}, "encode", "", ""},
		{"fault", &FaultError{State: StateTranscribing, Message: "panic"}, "fault", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Run{State: StateFailed, Err: tt.err, FailedIn: StateTranscribing}.Info()
			if info.Error == nil {
				t.Fatal("Expected error info")
			}
			if info.Error.Kind != tt.wantKind {
				t.Errorf("Expected kind %s, got %s", tt.wantKind, info.Error.Kind)
			}
			if info.Error.Stage != tt.wantStage {
				t.Errorf("Expected stage %q, got %q", tt.wantStage, info.Error.Stage)
			}
			if info.Error.Status != tt.wantStatus {
				t.Errorf("Expected status %q, got %q", tt.wantStatus, info.Error.Status)
			}
			if info.Error.FailedIn != StateTranscribing {
				t.Errorf("Expected failed_in transcribing, got %s", info.Error.FailedIn)
			}
		})
	}
}

func TestRunInfoComplete(t *testing.T) {
	run := Run{
		ID:          "abc",
		State:       StateComplete,
		Transcript:  &stage.Transcript{Text: "hello"},
		Translation: &stage.Translation{Text: "नमस्ते"},
		Audio:       &stage.SynthesizedAudio{Data: []byte("not a wav"), Format: "wav"},
	}

	info := run.Info()
	if info.Transcript != "hello" || info.Translation != "नमस्ते" {
		t.Errorf("Unexpected texts: %q / %q", info.Transcript, info.Translation)
	}
	if info.AudioBytes != 9 || info.AudioFormat != "wav" {
		t.Errorf("Unexpected audio info: %d bytes, format %s", info.AudioBytes, info.AudioFormat)
	}
	if info.AudioDuration != 0 {
		t.Errorf("Expected no duration for unparseable audio, got %v", info.AudioDuration)
	}
	if info.Error != nil {
		t.Errorf("Expected no error info, got %+v", info.Error)
	}
}
