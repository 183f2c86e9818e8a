package server

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/skypro1111/voice-translate-service/internal/pipeline"
	"github.com/skypro1111/voice-translate-service/internal/protocol"
	"github.com/skypro1111/voice-translate-service/internal/session"
)

func TestDispatchRun(t *testing.T) {
	env := newTestEnv(t, successClient())
	d := NewDispatcher(env.sessions, testLogger(), env.metrics)

	start, err := protocol.BuildStart(3, "en-IN", "ta-IN")
	if err != nil {
		t.Fatalf("BuildStart failed: %v", err)
	}
	if _, err := d.Dispatch(start); err != nil {
		t.Fatalf("Dispatch start failed: %v", err)
	}

	frame, err := protocol.BuildAudio(3, testFrame())
	if err != nil {
		t.Fatalf("BuildAudio failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := d.Dispatch(frame); err != nil {
			t.Fatalf("Dispatch audio failed: %v", err)
		}
	}

	packet, err := d.Dispatch(protocol.BuildStop(3))
	if err != nil {
		t.Fatalf("Dispatch stop failed: %v", err)
	}
	if packet.Header.PacketType != protocol.PacketTypeStop {
		t.Fatalf("Expected stop packet, got %s", protocol.PacketTypeName(packet.Header.PacketType))
	}

	run, err := d.Finish(context.Background(), 3)
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if run.State != pipeline.StateComplete {
		t.Errorf("Expected complete run, got %s", run.State)
	}
	if run.OutputLanguage != "ta-IN" {
		t.Errorf("Expected output language ta-IN, got %s", run.OutputLanguage)
	}

	if got := testutil.ToFloat64(env.metrics.PacketsReceived); got != 7 {
		t.Errorf("Expected 7 packets received, got %v", got)
	}
}

func TestDispatchErrors(t *testing.T) {
	env := newTestEnv(t, successClient())
	d := NewDispatcher(env.sessions, testLogger(), env.metrics)

	if packet, err := d.Dispatch([]byte{0x01, 0x02}); err == nil || packet != nil {
		t.Errorf("Expected parse error for short packet, got %v", err)
	}
	if got := testutil.ToFloat64(env.metrics.ParseErrors); got != 1 {
		t.Errorf("Expected 1 parse error, got %v", got)
	}

	// Audio for a session that never started
	frame, _ := protocol.BuildAudio(9, testFrame())
	if _, err := d.Dispatch(frame); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	start, _ := protocol.BuildStart(9, "en-IN", "xx-XX")
	if _, err := d.Dispatch(start); !errors.Is(err, session.ErrUnsupportedLanguage) {
		t.Errorf("Expected ErrUnsupportedLanguage, got %v", err)
	}

	start, _ = protocol.BuildStart(9, "", "")
	if _, err := d.Dispatch(start); err != nil {
		t.Fatalf("Dispatch start with defaults failed: %v", err)
	}
	if _, err := d.Dispatch(start); !errors.Is(err, session.ErrRunActive) {
		t.Errorf("Expected ErrRunActive, got %v", err)
	}

	if _, err := d.Dispatch(protocol.BuildCancel(9)); err != nil {
		t.Fatalf("Dispatch cancel failed: %v", err)
	}
	run, err := env.sessions.LastRun(9)
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if !errors.Is(run.Err, pipeline.ErrCanceled) {
		t.Errorf("Expected canceled run, got %v", run.Err)
	}
}
