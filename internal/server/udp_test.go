package server

import (
	"net"
	"testing"
	"time"

	"github.com/skypro1111/voice-translate-service/internal/pipeline"
	"github.com/skypro1111/voice-translate-service/internal/protocol"
)

func startTestUDP(t *testing.T, env *testEnv) (*UDPServer, *net.UDPConn) {
	t.Helper()

	udp := NewUDPServer(&env.config.Server, testLogger(), NewDispatcher(env.sessions, testLogger(), env.metrics))
	if err := udp.Start(); err != nil {
		t.Fatalf("Failed to start UDP server: %v", err)
	}
	t.Cleanup(func() { udp.Stop() })

	conn, err := net.DialUDP("udp", nil, udp.Addr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return udp, conn
}

func TestUDPRun(t *testing.T) {
	env := newTestEnv(t, successClient())
	_, conn := startTestUDP(t, env)

	start, _ := protocol.BuildStart(41, "en-IN", "bn-IN")
	frame, _ := protocol.BuildAudio(41, testFrame())

	packets := [][]byte{start}
	for i := 0; i < 5; i++ {
		packets = append(packets, frame)
	}
	packets = append(packets, protocol.BuildStop(41))

	for _, p := range packets {
		if _, err := conn.Write(p); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	var run pipeline.Run
	ok := waitFor(t, 5*time.Second, func() bool {
		var err error
		run, err = env.sessions.LastRun(41)
		return err == nil
	})
	if !ok {
		t.Fatal("Expected run to finish")
	}
	if run.State != pipeline.StateComplete {
		t.Errorf("Expected complete run, got %s (%v)", run.State, run.Err)
	}
	if run.OutputLanguage != "bn-IN" {
		t.Errorf("Expected output language bn-IN, got %s", run.OutputLanguage)
	}
}

func TestUDPStatistics(t *testing.T) {
	env := newTestEnv(t, successClient())
	udp, conn := startTestUDP(t, env)

	conn.Write([]byte{0xFF})
	conn.Write(protocol.BuildCancel(42))

	ok := waitFor(t, 2*time.Second, func() bool {
		stats := udp.GetStatistics()
		return stats.PacketsReceived == 2 && stats.ParseErrors == 1 && stats.PacketsProcessed == 1
	})
	if !ok {
		t.Errorf("Unexpected statistics: %+v", udp.GetStatistics())
	}

	stats := udp.GetStatistics()
	if stats.Workers != 2 {
		t.Errorf("Expected 2 workers, got %d", stats.Workers)
	}
	if stats.QueueCapacity != 2*shardQueueSize {
		t.Errorf("Expected queue capacity %d, got %d", 2*shardQueueSize, stats.QueueCapacity)
	}
}
