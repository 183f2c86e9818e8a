package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/voice-translate-service/internal/audio"
	"github.com/skypro1111/voice-translate-service/internal/config"
	"github.com/skypro1111/voice-translate-service/internal/metrics"
	"github.com/skypro1111/voice-translate-service/internal/pipeline"
	"github.com/skypro1111/voice-translate-service/internal/sarvam"
	"github.com/skypro1111/voice-translate-service/internal/session"
	"github.com/skypro1111/voice-translate-service/internal/stage"
)

const (
	serviceName    = "voice-translate-service"
	serviceVersion = "1.0.0"
)

// maxFrameBody caps a JSON frame upload
const maxFrameBody = 4 << 20

// StageStatsSource reports remote stage client statistics
type StageStatsSource interface {
	GetStats() sarvam.ClientStats
}

// HTTPDeps are the components the HTTP API serves
type HTTPDeps struct {
	Sessions   *session.Manager
	Dispatcher *Dispatcher      // nil builds one over Sessions
	UDP        *UDPServer       // nil when UDP ingest is disabled
	StageStats StageStatsSource // optional
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer // nil uses the default registry
}

// HTTPServer provides the run API plus monitoring endpoints
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	sessions   *session.Manager
	dispatcher *Dispatcher
	udpServer  *UDPServer
	stageStats StageStatsSource
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer

	// ctx outlives individual requests; runs finished over websockets use it
	ctx    context.Context
	cancel context.CancelFunc

	startTime time.Time
}

// StartRunRequest is the body of POST /sessions/{id}/runs.
// Languages are display names or codes; empty uses the configured defaults.
type StartRunRequest struct {
	InputLanguage  string `json:"input_language"`
	OutputLanguage string `json:"output_language"`
}

// FrameRequest is the body of POST /sessions/{id}/frames
type FrameRequest struct {
	Samples    []int16 `json:"samples"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(appConfig *config.Config, logger *slog.Logger, deps HTTPDeps) *HTTPServer {
	ctx, cancel := context.WithCancel(context.Background())

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		sessions:   deps.Sessions,
		dispatcher: deps.Dispatcher,
		udpServer:  deps.UDP,
		stageStats: deps.StageStats,
		metrics:    deps.Metrics,
		gatherer:   deps.Gatherer,
		ctx:        ctx,
		cancel:     cancel,
		startTime:  time.Now(),
	}

	if h.dispatcher == nil {
		h.dispatcher = NewDispatcher(deps.Sessions, logger, deps.Metrics)
	}
	if h.gatherer == nil {
		h.gatherer = prometheus.DefaultGatherer
	}

	// A finish request waits for all three remote stages
	writeTimeout := 3*appConfig.Pipeline.GetStageTimeoutDuration() + 10*time.Second

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:      h.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed API handler
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	h.setupRoutes(mux)
	return mux
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /languages", h.withMetrics("/languages", h.handleLanguages))
	mux.HandleFunc("GET /config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("GET /stats", h.withMetrics("/stats", h.handleStats))

	// Sessions and runs
	mux.HandleFunc("GET /sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("GET /sessions/{id}", h.withMetrics("/sessions/{id}", h.handleSessionDetail))
	mux.HandleFunc("DELETE /sessions/{id}", h.withMetrics("/sessions/{id}", h.handleRemoveSession))
	mux.HandleFunc("POST /sessions/{id}/runs", h.withMetrics("/sessions/{id}/runs", h.handleStartRun))
	mux.HandleFunc("DELETE /sessions/{id}/runs", h.withMetrics("/sessions/{id}/runs", h.handleCancelRun))
	mux.HandleFunc("POST /sessions/{id}/runs/finish", h.withMetrics("/sessions/{id}/runs/finish", h.handleFinishRun))
	mux.HandleFunc("POST /sessions/{id}/frames", h.withMetrics("/sessions/{id}/frames", h.handleFrames))
	mux.HandleFunc("GET /sessions/{id}/audio", h.withMetrics("/sessions/{id}/audio", h.handleAudio))
	mux.HandleFunc("GET /sessions/{id}/stream", h.withMetrics("/sessions/{id}/stream", h.handleStream))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("GET /{$}", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		if h.metrics == nil {
			return
		}

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the stream endpoint upgrade through the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	listener, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server", slog.String("address", listener.Addr().String()))

	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server and cancels runs finishing for
// stream clients
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	err := h.server.Shutdown(ctx)
	h.cancel()
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrRunActive),
		errors.Is(err, session.ErrNoActiveRun),
		errors.Is(err, pipeline.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, session.ErrUnsupportedLanguage),
		errors.Is(err, audio.ErrCapture):
		status = http.StatusBadRequest
	}

	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func parseSessionID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return 0, false
	}
	return uint32(id), true
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]any{
		"session_manager": map[string]any{
			"status":          "running",
			"active_sessions": h.sessions.GetActiveSessionCount(),
		},
	}

	if h.udpServer != nil {
		udpStats := h.udpServer.GetStatistics()
		components["udp_server"] = map[string]any{
			"status":            "running",
			"packets_received":  udpStats.PacketsReceived,
			"packets_processed": udpStats.PacketsProcessed,
			"parse_errors":      udpStats.ParseErrors,
			"queue_size":        udpStats.QueueSize,
		}
	}

	if h.stageStats != nil {
		stageStats := h.stageStats.GetStats()
		components["sarvam"] = map[string]any{
			"status":          "running",
			"total_requests":  stageStats.TotalRequests,
			"success_rate":    stageStats.SuccessRate,
			"active_requests": stageStats.ActiveRequests,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": components,
	})
}

// handleLanguages implements the /languages endpoint
func (h *HTTPServer) handleLanguages(w http.ResponseWriter, r *http.Request) {
	languages := h.config.Languages

	writeJSON(w, http.StatusOK, map[string]any{
		"languages":      languages.Supported,
		"default_input":  languages.DefaultInputCode(),
		"default_output": languages.DefaultOutputCode(),
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Sanitized()

	writeJSON(w, http.StatusOK, map[string]any{
		"server": map[string]any{
			"enabled":      cfg.Server.Enabled,
			"udp_port":     cfg.Server.UDPPort,
			"bind_address": cfg.Server.BindAddress,
			"buffer_size":  cfg.Server.BufferSize,
			"workers":      cfg.Server.Workers,
		},
		"http": map[string]any{
			"address": cfg.HTTP.Address,
			"port":    cfg.HTTP.Port,
		},
		"audio": map[string]any{
			"max_capture_duration": cfg.Audio.MaxCaptureDuration,
			"spool_dir":            cfg.Audio.SpoolDir,
			"in_memory_spool":      cfg.Audio.InMemorySpool,
		},
		"languages": map[string]any{
			"supported":      cfg.Languages.Supported,
			"default_input":  cfg.Languages.DefaultInput,
			"default_output": cfg.Languages.DefaultOutput,
		},
		"sarvam": map[string]any{
			"base_url":       cfg.Sarvam.BaseURL,
			"api_key":        cfg.Sarvam.APIKey,
			"timeout":        cfg.Sarvam.Timeout,
			"max_concurrent": cfg.Sarvam.MaxConcurrent,
		},
		"pipeline": map[string]any{
			"stage_timeout":    cfg.Pipeline.StageTimeout,
			"session_timeout":  cfg.Pipeline.SessionTimeout,
			"cleanup_interval": cfg.Pipeline.CleanupInterval,
		},
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
			"output": cfg.Logging.Output,
		},
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]any{
			"active_count": h.sessions.GetActiveSessionCount(),
		},
	}

	if h.udpServer != nil {
		stats["udp"] = h.udpServer.GetStatistics()
	}
	if h.stageStats != nil {
		stats["sarvam"] = h.stageStats.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.GetAllSessions()
	infos := make([]session.SessionInfo, 0, len(sessions))

	for _, s := range sessions {
		infos = append(infos, s.GetSessionInfo())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

// handleSessionDetail implements GET /sessions/{id}
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	s, exists := h.sessions.GetSession(id)
	if !exists {
		writeError(w, session.ErrSessionNotFound)
		return
	}

	writeJSON(w, http.StatusOK, s.GetSessionInfo())
}

// handleRemoveSession implements DELETE /sessions/{id}
func (h *HTTPServer) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	if !h.sessions.RemoveSession(id) {
		writeError(w, session.ErrSessionNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleStartRun implements POST /sessions/{id}/runs
func (h *HTTPServer) handleStartRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	input, err := h.resolveLanguage(req.InputLanguage)
	if err != nil {
		writeError(w, err)
		return
	}
	output, err := h.resolveLanguage(req.OutputLanguage)
	if err != nil {
		writeError(w, err)
		return
	}

	orch, err := h.sessions.StartRun(id, input, output)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": id,
		"run":        orch.Snapshot().Info(),
	})
}

// resolveLanguage maps a display name or code to a catalogue code
func (h *HTTPServer) resolveLanguage(nameOrCode string) (stage.Language, error) {
	if nameOrCode == "" {
		return "", nil
	}
	code, ok := h.config.Languages.Lookup(nameOrCode)
	if !ok {
		return "", fmt.Errorf("%q: %w", nameOrCode, session.ErrUnsupportedLanguage)
	}
	return code, nil
}

// handleFrames implements POST /sessions/{id}/frames
func (h *HTTPServer) handleFrames(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	var req FrameRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFrameBody)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Channels == 0 {
		req.Channels = 1
	}

	frame := audio.Frame{
		Samples:    req.Samples,
		SampleRate: req.SampleRate,
		Channels:   req.Channels,
	}

	if err := h.sessions.AppendFrame(id, frame); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"samples": len(frame.Samples),
	})
}

// handleFinishRun implements POST /sessions/{id}/runs/finish. It blocks
// until the run is terminal; a failed run is reported with 422.
func (h *HTTPServer) handleFinishRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	run, err := h.dispatcher.Finish(r.Context(), id)
	if err != nil && (run.ID == "" || errors.Is(err, pipeline.ErrInvalidTransition)) {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if run.State != pipeline.StateComplete {
		status = http.StatusUnprocessableEntity
	}

	writeJSON(w, status, run.Info())
}

// handleCancelRun implements DELETE /sessions/{id}/runs
func (h *HTTPServer) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	if err := h.sessions.CancelRun(id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAudio implements GET /sessions/{id}/audio, serving the synthesized
// speech of the session's most recent completed run
func (h *HTTPServer) handleAudio(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	run, err := h.sessions.LastRun(id)
	if err != nil {
		if errors.Is(err, session.ErrNoActiveRun) {
			http.Error(w, "No completed run", http.StatusNotFound)
			return
		}
		writeError(w, err)
		return
	}

	if run.State != pipeline.StateComplete || run.Audio == nil {
		http.Error(w, "No completed run", http.StatusNotFound)
		return
	}

	contentType := "audio/wav"
	if run.Audio.Format != "" && run.Audio.Format != "wav" {
		contentType = "audio/" + run.Audio.Format
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(run.Audio.Data)))
	w.Header().Set("X-Run-ID", run.ID)
	w.WriteHeader(http.StatusOK)
	w.Write(run.Audio.Data)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Voice Translation Service",
		"version": serviceVersion,
		"endpoints": map[string]any{
			"GET /":                           "API documentation",
			"GET /health":                     "Service health check",
			"GET /languages":                  "Supported languages and defaults",
			"GET /config":                     "Get service configuration",
			"GET /stats":                      "Get service statistics",
			"GET /sessions":                   "List all sessions",
			"GET /sessions/{id}":              "Get session details",
			"DELETE /sessions/{id}":           "Remove a session",
			"POST /sessions/{id}/runs":        "Start a translation run",
			"DELETE /sessions/{id}/runs":      "Cancel the active run",
			"POST /sessions/{id}/runs/finish": "Stop capture and translate",
			"POST /sessions/{id}/frames":      "Append an audio frame",
			"GET /sessions/{id}/audio":        "Synthesized audio of the last run",
			"GET /sessions/{id}/stream":       "Websocket ingest stream",
			"GET /metrics":                    "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
