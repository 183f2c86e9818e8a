package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/skypro1111/voice-translate-service/internal/config"
	"github.com/skypro1111/voice-translate-service/internal/metrics"
	"github.com/skypro1111/voice-translate-service/internal/pipeline"
	"github.com/skypro1111/voice-translate-service/internal/sarvam"
	"github.com/skypro1111/voice-translate-service/internal/server"
	"github.com/skypro1111/voice-translate-service/internal/session"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voice-translate-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to .env file with secrets")
	flag.Parse()

	// Secrets first so the config can pick up SARVAM_API_KEY
	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load environment: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Bool("udp_enabled", cfg.Server.Enabled),
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("workers", cfg.Server.Workers),
		slog.Float64("max_capture_duration", cfg.Audio.MaxCaptureDuration),
		slog.String("default_input", cfg.Languages.DefaultInput),
		slog.String("default_output", cfg.Languages.DefaultOutput),
		slog.String("sarvam_base_url", cfg.Sarvam.BaseURL),
		slog.Int("stage_timeout", cfg.Pipeline.StageTimeout),
		slog.String("log_level", cfg.Logging.Level),
	)

	shutdownTracer, err := initTracer()
	if err != nil {
		logger.Error("Failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	sarvamClient, err := sarvam.NewClient(sarvam.Config{
		BaseURL:       cfg.Sarvam.BaseURL,
		APIKey:        cfg.Sarvam.APIKey,
		Timeout:       cfg.Sarvam.GetTimeoutDuration(),
		MaxConcurrent: cfg.Sarvam.MaxConcurrent,
	}, logger)
	if err != nil {
		logger.Error("Failed to create Sarvam client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var stager pipeline.Stager = pipeline.FileStager{Dir: cfg.Audio.SpoolDir}
	if cfg.Audio.InMemorySpool {
		stager = pipeline.MemoryStager{}
	}

	sessionMgr, err := session.NewManager(logger, sarvamClient, session.Config{
		IdleTimeout:        cfg.Pipeline.GetSessionTimeoutDuration(),
		CleanupInterval:    cfg.Pipeline.GetCleanupIntervalDuration(),
		StageTimeout:       cfg.Pipeline.GetStageTimeoutDuration(),
		MaxCaptureDuration: cfg.Audio.GetMaxCaptureDuration(),
		Languages:          cfg.Languages.Codes(),
		DefaultInput:       cfg.Languages.DefaultInputCode(),
		DefaultOutput:      cfg.Languages.DefaultOutputCode(),
		Stager:             stager,
		Metrics:            appMetrics,
		Tracer:             otel.Tracer(serviceName),
	})
	if err != nil {
		logger.Error("Failed to create session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session manager initialized",
		slog.Duration("session_timeout", cfg.Pipeline.GetSessionTimeoutDuration()),
		slog.Int("languages", len(cfg.Languages.Supported)),
	)

	dispatcher := server.NewDispatcher(sessionMgr, logger, appMetrics)

	// Initialize UDP server (if enabled)
	var udpServer *server.UDPServer
	if cfg.Server.Enabled {
		udpServer = server.NewUDPServer(&cfg.Server, logger, dispatcher)
		if err := udpServer.Start(); err != nil {
			logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg, logger, server.HTTPDeps{
			Sessions:   sessionMgr,
			Dispatcher: dispatcher,
			UDP:        udpServer,
			StageStats: sarvamClient,
			Metrics:    appMetrics,
			Gatherer:   prometheus.DefaultGatherer,
		})
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop UDP server (stop accepting new packets)
	if udpServer != nil {
		if err := udpServer.Stop(); err != nil {
			logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
		}
	}

	// Cancel remaining runs and stop background routines
	sessionMgr.Stop()

	if err := sarvamClient.Close(shutdownCtx); err != nil {
		logger.Error("Error waiting for Sarvam requests", slog.String("error", err.Error()))
	}

	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error("Error shutting down tracer", slog.String("error", err.Error()))
	}

	stats := sarvamClient.GetStats()
	logger.Info("Final Sarvam statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
		slog.Duration("avg_response_time", stats.AvgResponseTime),
	)

	if udpServer != nil {
		udpStats := udpServer.GetStatistics()
		logger.Info("Final server statistics",
			slog.Uint64("packets_received", udpStats.PacketsReceived),
			slog.Uint64("packets_processed", udpStats.PacketsProcessed),
			slog.Uint64("parse_errors", udpStats.ParseErrors),
			slog.Uint64("packets_dropped", udpStats.PacketsDropped),
		)
	}

	logger.Info("Service stopped")
}

// initTracer registers the global tracer provider. Spans are recorded for
// sampling decisions and context propagation; no exporter is attached.
func initTracer() (func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
