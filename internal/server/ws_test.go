package server

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/voice-translate-service/internal/pipeline"
	"github.com/skypro1111/voice-translate-service/internal/protocol"
)

func dialStream(t *testing.T, env *testEnv, id string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/sessions/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) StreamEvent {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var event StreamEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return event
}

func writePacket(t *testing.T, conn *websocket.Conn, data []byte) {
	t.Helper()
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
}

func TestStreamRun(t *testing.T) {
	env := newTestEnv(t, successClient())
	conn := dialStream(t, env, "31")

	start, _ := protocol.BuildStart(31, "en-IN", "hi-IN")
	writePacket(t, conn, start)

	event := readEvent(t, conn)
	if event.Type != "started" || event.RunID == "" {
		t.Fatalf("Expected started event with run ID, got %+v", event)
	}

	frame, _ := protocol.BuildAudio(31, testFrame())
	for i := 0; i < 10; i++ {
		writePacket(t, conn, frame)
	}
	writePacket(t, conn, protocol.BuildStop(31))

	event = readEvent(t, conn)
	if event.Type != "run" || event.Run == nil {
		t.Fatalf("Expected run event, got %+v", event)
	}
	if event.Run.State != pipeline.StateComplete {
		t.Errorf("Expected complete run, got %s", event.Run.State)
	}
	if event.Run.Translation != "स्टेशन कहाँ है" {
		t.Errorf("Expected translation, got %q", event.Run.Translation)
	}
	if event.RunID != event.Run.ID {
		t.Errorf("Expected event run ID %s, got %s", event.Run.ID, event.RunID)
	}
}

func TestStreamRejectsBadMessages(t *testing.T) {
	env := newTestEnv(t, successClient())
	conn := dialStream(t, env, "32")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if event := readEvent(t, conn); event.Type != "error" {
		t.Errorf("Expected error event for text message, got %+v", event)
	}

	other, _ := protocol.BuildStart(33, "en-IN", "hi-IN")
	writePacket(t, conn, other)
	if event := readEvent(t, conn); event.Type != "error" || !strings.Contains(event.Error, "session") {
		t.Errorf("Expected session mismatch error, got %+v", event)
	}

	writePacket(t, conn, []byte{0x02})
	if event := readEvent(t, conn); event.Type != "error" {
		t.Errorf("Expected error event for short packet, got %+v", event)
	}

	// Stop with nothing running
	writePacket(t, conn, protocol.BuildStop(32))
	if event := readEvent(t, conn); event.Type != "error" {
		t.Errorf("Expected error event for stop without run, got %+v", event)
	}
}

func TestStreamDisconnectCancelsCapture(t *testing.T) {
	env := newTestEnv(t, successClient())
	conn := dialStream(t, env, "34")

	start, _ := protocol.BuildStart(34, "", "")
	writePacket(t, conn, start)
	readEvent(t, conn)

	conn.Close()

	ok := waitFor(t, 2*time.Second, func() bool {
		run, err := env.sessions.LastRun(34)
		return err == nil && run.State == pipeline.StateFailed
	})
	if !ok {
		t.Error("Expected abandoned capture to be canceled")
	}
}
