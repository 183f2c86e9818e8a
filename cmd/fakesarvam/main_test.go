package main

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/skypro1111/voice-translate-service/internal/audio"
	"github.com/skypro1111/voice-translate-service/internal/sarvam"
)

func TestFakeServerWithSarvamClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler, err := newHandler(logger, 0)
	if err != nil {
		t.Fatalf("newHandler failed: %v", err)
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client, err := sarvam.NewClient(sarvam.Config{BaseURL: srv.URL, APIKey: "dev", Timeout: 5 * time.Second}, logger)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	wav, err := audio.EncodeWAV(audio.NewBuffer(make([]int16, 16000), 16000))
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	ctx := context.Background()

	transcript, err := client.Transcribe(ctx, wav, "en-IN")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if !strings.Contains(transcript.Text, "1.0 seconds") {
		t.Errorf("Expected transcript to report duration, got %q", transcript.Text)
	}

	translation, err := client.Translate(ctx, transcript.Text, "en-IN", "hi-IN")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if !strings.HasPrefix(translation.Text, "[hi-IN]") {
		t.Errorf("Expected target tag prefix, got %q", translation.Text)
	}

	speech, err := client.Synthesize(ctx, translation.Text, "hi-IN")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if err := audio.ValidateWAV(speech.Data); err != nil {
		t.Errorf("Expected valid WAV speech, got %v", err)
	}
}

func TestFakeServerRejectsBadAudio(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler, _ := newHandler(logger, 0)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client, _ := sarvam.NewClient(sarvam.Config{BaseURL: srv.URL, APIKey: "dev"}, logger)

	if _, err := client.Transcribe(context.Background(), []byte("not a wav"), "en-IN"); err == nil {
		t.Error("Expected error for invalid WAV upload")
	}
}
