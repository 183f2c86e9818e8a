// Package mock provides a test double for the stage.Client interface.
//
// Use Client to script stage results and to assert which stages a pipeline
// run actually reached.
//
// Example:
//
//	c := &mock.Client{
//	    TranscribeResult: stage.Transcript{Text: "hello"},
//	    TranslateResult:  stage.Translation{Text: "नमस्ते"},
//	    SynthesizeResult: stage.SynthesizedAudio{Data: []byte("RIFF"), Format: "wav"},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/skypro1111/voice-translate-service/internal/stage"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Audio is a copy of the audio bytes passed to Transcribe.
	Audio []byte
	// Source is the source language passed to Transcribe.
	Source stage.Language
}

// TranslateCall records a single invocation of Translate.
type TranslateCall struct {
	Text   string
	Source stage.Language
	Target stage.Language
}

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text   string
	Target stage.Language
}

// Client is a mock implementation of stage.Client.
type Client struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// TranscribeResult and TranscribeErr are returned by Transcribe.
	TranscribeResult stage.Transcript
	TranscribeErr    error

	// TranslateResult and TranslateErr are returned by Translate.
	TranslateResult stage.Translation
	TranslateErr    error

	// SynthesizeResult and SynthesizeErr are returned by Synthesize.
	SynthesizeResult stage.SynthesizedAudio
	SynthesizeErr    error

	// BlockOn makes the named stage wait for ctx to be done and return ctx.Err().
	BlockOn stage.Stage

	// PanicOn makes the named stage panic.
	PanicOn stage.Stage

	// Entered, if non-nil, receives the stage name each time a call starts.
	Entered chan stage.Stage

	// --- Call records ---

	TranscribeCalls []TranscribeCall
	TranslateCalls  []TranslateCall
	SynthesizeCalls []SynthesizeCall
}

// Transcribe records the call and returns TranscribeResult, TranscribeErr.
func (c *Client) Transcribe(ctx context.Context, audio []byte, source stage.Language) (stage.Transcript, error) {
	c.mu.Lock()
	audioCopy := make([]byte, len(audio))
	copy(audioCopy, audio)
	c.TranscribeCalls = append(c.TranscribeCalls, TranscribeCall{Audio: audioCopy, Source: source})
	result, err := c.TranscribeResult, c.TranscribeErr
	c.mu.Unlock()

	if err := c.enter(ctx, stage.STT); err != nil {
		return stage.Transcript{}, err
	}
	return result, err
}

// Translate records the call and returns TranslateResult, TranslateErr.
func (c *Client) Translate(ctx context.Context, text string, source, target stage.Language) (stage.Translation, error) {
	c.mu.Lock()
	c.TranslateCalls = append(c.TranslateCalls, TranslateCall{Text: text, Source: source, Target: target})
	result, err := c.TranslateResult, c.TranslateErr
	c.mu.Unlock()

	if err := c.enter(ctx, stage.Translate); err != nil {
		return stage.Translation{}, err
	}
	return result, err
}

// Synthesize records the call and returns SynthesizeResult, SynthesizeErr.
func (c *Client) Synthesize(ctx context.Context, text string, target stage.Language) (stage.SynthesizedAudio, error) {
	c.mu.Lock()
	c.SynthesizeCalls = append(c.SynthesizeCalls, SynthesizeCall{Text: text, Target: target})
	result, err := c.SynthesizeResult, c.SynthesizeErr
	c.mu.Unlock()

	if err := c.enter(ctx, stage.TTS); err != nil {
		return stage.SynthesizedAudio{}, err
	}
	return result, err
}

// enter applies the Entered, PanicOn and BlockOn behaviours for s.
func (c *Client) enter(ctx context.Context, s stage.Stage) error {
	if c.Entered != nil {
		c.Entered <- s
	}
	if c.PanicOn == s {
		panic("mock: scripted panic in " + string(s))
	}
	if c.BlockOn == s {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// Calls returns the number of calls recorded per stage. Thread-safe.
func (c *Client) Calls() (transcribe, translate, synthesize int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.TranscribeCalls), len(c.TranslateCalls), len(c.SynthesizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TranscribeCalls = nil
	c.TranslateCalls = nil
	c.SynthesizeCalls = nil
}

// Ensure Client implements stage.Client at compile time.
var _ stage.Client = (*Client)(nil)
