package server

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/voice-translate-service/internal/audio"
	"github.com/skypro1111/voice-translate-service/internal/config"
	"github.com/skypro1111/voice-translate-service/internal/metrics"
	"github.com/skypro1111/voice-translate-service/internal/pipeline"
	"github.com/skypro1111/voice-translate-service/internal/session"
	"github.com/skypro1111/voice-translate-service/internal/stage"
	"github.com/skypro1111/voice-translate-service/internal/stage/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func successClient() *mock.Client {
	return &mock.Client{
		TranscribeResult: stage.Transcript{Text: "where is the station"},
		TranslateResult:  stage.Translation{Text: "स्टेशन कहाँ है"},
		SynthesizeResult: stage.SynthesizedAudio{Data: []byte("RIFFaudio"), Format: "wav"},
	}
}

func testAppConfig() *config.Config {
	cfg := config.Default()
	cfg.Sarvam.APIKey = "test-key"
	cfg.Server.BindAddress = "127.0.0.1"
	cfg.Server.UDPPort = 0
	cfg.Server.Workers = 2
	return cfg
}

// testEnv bundles a session manager with the API served over httptest
type testEnv struct {
	config   *config.Config
	sessions *session.Manager
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	api      *HTTPServer
	server   *httptest.Server
}

func newTestEnv(t *testing.T, client stage.Client) *testEnv {
	t.Helper()

	cfg := testAppConfig()
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	mgr, err := session.NewManager(testLogger(), client, session.Config{
		IdleTimeout:     time.Minute,
		CleanupInterval: time.Minute,
		StageTimeout:    5 * time.Second,
		Languages:       cfg.Languages.Codes(),
		DefaultInput:    cfg.Languages.DefaultInputCode(),
		DefaultOutput:   cfg.Languages.DefaultOutputCode(),
		Stager:          pipeline.MemoryStager{},
		Metrics:         m,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	api := NewHTTPServer(cfg, testLogger(), HTTPDeps{
		Sessions: mgr,
		Metrics:  m,
		Gatherer: registry,
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		api.cancel()
		srv.Close()
	})

	return &testEnv{
		config:   cfg,
		sessions: mgr,
		metrics:  m,
		registry: registry,
		api:      api,
		server:   srv,
	}
}

func testFrame() audio.Frame {
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i % 200)
	}
	return audio.Frame{Samples: samples, SampleRate: 16000, Channels: 1}
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
