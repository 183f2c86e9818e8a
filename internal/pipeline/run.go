package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/skypro1111/voice-translate-service/internal/audio"
	"github.com/skypro1111/voice-translate-service/internal/stage"
)

// defaultStageTimeout bounds each remote call when Config leaves it unset
const defaultStageTimeout = 30 * time.Second

// Config holds the per-run settings chosen when the run is created.
type Config struct {
	InputLanguage      stage.Language
	OutputLanguage     stage.Language
	StageTimeout       time.Duration // per remote call
	MaxCaptureDuration time.Duration // 0 = unlimited
}

// Validate checks the run configuration
func (c Config) Validate() error {
	if c.InputLanguage == "" {
		return fmt.Errorf("input language cannot be empty")
	}

	if c.OutputLanguage == "" {
		return fmt.Errorf("output language cannot be empty")
	}

	if c.StageTimeout < 0 {
		return fmt.Errorf("stage timeout cannot be negative, got %v", c.StageTimeout)
	}

	if c.MaxCaptureDuration < 0 {
		return fmt.Errorf("max capture duration cannot be negative, got %v", c.MaxCaptureDuration)
	}

	return nil
}

// Run is the aggregate record of one translation attempt.
//
// Once Err is set the run never advances. A Complete run has Transcript,
// Translation and Audio populated.
type Run struct {
	ID             string
	State          State
	InputLanguage  stage.Language
	OutputLanguage stage.Language

	Transcript  *stage.Transcript
	Translation *stage.Translation
	Audio       *stage.SynthesizedAudio

	Err      error
	FailedIn State // state the run was in when Err was recorded

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunInfo is the JSON view of a run for API consumers
type RunInfo struct {
	ID             string         `json:"id"`
	State          State          `json:"state"`
	InputLanguage  stage.Language `json:"input_language"`
	OutputLanguage stage.Language `json:"output_language"`
	Transcript     string         `json:"transcript,omitempty"`
	Translation    string         `json:"translation,omitempty"`
	AudioFormat    string         `json:"audio_format,omitempty"`
	AudioBytes     int            `json:"audio_bytes,omitempty"`
	AudioDuration  float64        `json:"audio_duration_seconds,omitempty"`
	Error          *ErrorInfo     `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      time.Time      `json:"started_at,omitzero"`
	FinishedAt     time.Time      `json:"finished_at,omitzero"`
}

// ErrorInfo describes why a run failed, for rendering by the UI
type ErrorInfo struct {
	Kind     string `json:"kind"`
	Stage    string `json:"stage,omitempty"`
	Status   string `json:"status,omitempty"`
	FailedIn State  `json:"failed_in"`
	Message  string `json:"message"`
}

// Info returns the JSON view of the run
func (r Run) Info() RunInfo {
	info := RunInfo{
		ID:             r.ID,
		State:          r.State,
		InputLanguage:  r.InputLanguage,
		OutputLanguage: r.OutputLanguage,
		CreatedAt:      r.CreatedAt,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}

	if r.Transcript != nil {
		info.Transcript = r.Transcript.Text
	}
	if r.Translation != nil {
		info.Translation = r.Translation.Text
	}
	if r.Audio != nil {
		info.AudioFormat = r.Audio.Format
		info.AudioBytes = len(r.Audio.Data)
		if d, err := audio.GetWAVDuration(r.Audio.Data); err == nil {
			info.AudioDuration = d
		}
	}
	if r.Err != nil {
		info.Error = describeError(r.Err, r.FailedIn)
	}

	return info
}

// describeError classifies err for display
func describeError(err error, failedIn State) *ErrorInfo {
	info := &ErrorInfo{
		Kind:     "fault",
		FailedIn: failedIn,
		Message:  err.Error(),
	}

	var stageErr *stage.StageError
	var emptyErr *stage.EmptyResultError
	var faultErr *FaultError

	switch {
	case errors.As(err, &stageErr):
		info.Kind = "stage"
		info.Stage = string(stageErr.Stage)
		info.Status = stageErr.Status
		if stageErr.Status == stage.StatusTimeout {
			info.Kind = "timeout"
		}
	case errors.As(err, &emptyErr):
		info.Kind = "empty_result"
		info.Stage = string(emptyErr.Stage)
	case errors.Is(err, ErrCanceled):
		info.Kind = "canceled"
	case errors.Is(err, audio.ErrCapture):
		info.Kind = "capture"
	case errors.As(err, new(*audio.EncodeError)):
		info.Kind = "encode"
	case errors.As(err, &faultErr):
		info.Kind = "fault"
	}

	return info
}
