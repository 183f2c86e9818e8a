package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skypro1111/voice-translate-service/internal/audio"
	"github.com/skypro1111/voice-translate-service/internal/metrics"
	"github.com/skypro1111/voice-translate-service/internal/stage"
)

const tracerName = "github.com/skypro1111/voice-translate-service/internal/pipeline"

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics. A nil value disables them.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for run and stage spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithStager sets how encoded audio is held for transcription.
// The default spools to a temporary file.
func WithStager(stager Stager) Option {
	return func(o *Orchestrator) {
		if stager != nil {
			o.stager = stager
		}
	}
}

// Orchestrator drives a single run through capture, encoding and the three
// remote stages. It is safe for concurrent use: frames may be appended from
// one goroutine while another calls Cancel.
type Orchestrator struct {
	client  stage.Client
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	stager  Stager

	mu        sync.Mutex
	run       Run
	capture   *audio.Capture
	finishing bool
	cancel    context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

// NewOrchestrator creates a run in the Idle state
func NewOrchestrator(client stage.Client, cfg Config, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, fmt.Errorf("stage client cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}

	if cfg.StageTimeout == 0 {
		cfg.StageTimeout = defaultStageTimeout
	}

	o := &Orchestrator{
		client: client,
		cfg:    cfg,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		stager: FileStager{},
		done:   make(chan struct{}),
		run: Run{
			ID:             uuid.NewString(),
			State:          StateIdle,
			InputLanguage:  cfg.InputLanguage,
			OutputLanguage: cfg.OutputLanguage,
			CreatedAt:      time.Now(),
		},
	}

	for _, opt := range opts {
		opt(o)
	}

	o.logger = o.logger.With(slog.String("run_id", o.run.ID))

	return o, nil
}

// ID returns the run identifier
func (o *Orchestrator) ID() string {
	return o.run.ID
}

// State returns the current run state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run.State
}

// Snapshot returns a copy of the run record
func (o *Orchestrator) Snapshot() Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run
}

// CaptureStats reports the capture of this run. ok is false before Start.
func (o *Orchestrator) CaptureStats() (stats audio.CaptureStats, ok bool) {
	o.mu.Lock()
	capture := o.capture
	o.mu.Unlock()

	if capture == nil {
		return audio.CaptureStats{}, false
	}
	return capture.GetStats(), true
}

// Done is closed when the run reaches Complete or Failed
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Start opens the capture session
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run.State != StateIdle {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, o.run.State)
	}

	var captureOpts []audio.CaptureOption
	if o.cfg.MaxCaptureDuration > 0 {
		captureOpts = append(captureOpts, audio.WithMaxDuration(o.cfg.MaxCaptureDuration))
	}

	o.capture = audio.NewCapture(captureOpts...)
	o.run.State = StateCapturing
	o.run.StartedAt = time.Now()

	if o.metrics != nil {
		o.metrics.RecordRunStarted()
	}

	o.logger.Info("Run started",
		slog.String("input_language", string(o.cfg.InputLanguage)),
		slog.String("output_language", string(o.cfg.OutputLanguage)))

	return nil
}

// Append adds a captured frame to the run
func (o *Orchestrator) Append(frame audio.Frame) error {
	o.mu.Lock()
	if o.run.State != StateCapturing || o.finishing {
		o.mu.Unlock()
		return ErrNotCapturing
	}
	capture := o.capture
	o.mu.Unlock()

	if err := capture.Append(frame); err != nil {
		if o.metrics != nil {
			o.metrics.RecordFrameRejected(rejectReason(err))
		}
		return err
	}

	if o.metrics != nil {
		o.metrics.RecordFrameCaptured()
	}

	return nil
}

// Finish ends capture and drives the run to a terminal state. The returned
// error is the run's failure, or ErrInvalidTransition when the run was not
// capturing.
func (o *Orchestrator) Finish(ctx context.Context) (run Run, err error) {
	o.mu.Lock()
	if o.run.State != StateCapturing || o.finishing {
		state := o.run.State
		snapshot := o.run
		o.mu.Unlock()
		return snapshot, fmt.Errorf("%w: cannot finish from %s", ErrInvalidTransition, state)
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.finishing = true
	capture := o.capture
	o.mu.Unlock()

	defer cancel()

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", o.run.ID),
		attribute.String("run.input_language", string(o.cfg.InputLanguage)),
		attribute.String("run.output_language", string(o.cfg.OutputLanguage)),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			state := o.State()
			o.logger.Error("Recovered panic in pipeline",
				slog.String("state", state.String()),
				slog.Any("panic", r))
			o.fail(&FaultError{State: state, Message: fmt.Sprintf("panic: %v", r)})
		}

		run = o.Snapshot()
		err = run.Err

		span.SetAttributes(attribute.String("run.state", run.State.String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}()

	if execErr := o.execute(ctx, capture); execErr != nil {
		o.fail(execErr)
		return
	}

	o.complete()
	return
}

// Cancel aborts the run. No stage is invoked after Cancel returns, and the
// run ends Failed with ErrCanceled. Cancelling a terminal run is a no-op.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.run.State.Terminal() {
		o.mu.Unlock()
		return
	}

	if o.finishing {
		cancel := o.cancel
		o.mu.Unlock()
		cancel()
		return
	}

	capture := o.capture
	o.mu.Unlock()

	if capture != nil {
		capture.Close()
	}

	o.fail(ErrCanceled)
}

// execute runs encoding and the three stages, returning the first failure
func (o *Orchestrator) execute(ctx context.Context, capture *audio.Capture) error {
	if err := ctx.Err(); err != nil {
		capture.Close()
		return canceled("encoding", err)
	}

	if err := o.transition(StateEncoding); err != nil {
		return err
	}

	buffer, err := capture.Finalize()
	if err != nil {
		return err
	}

	wav, err := audio.EncodeWAV(buffer)
	if err != nil {
		return err
	}

	stats := buffer.GetStats()
	if o.metrics != nil {
		o.metrics.RecordCapture(stats.Duration, len(wav))
	}

	o.logger.Debug("Capture encoded",
		slog.Int("samples", stats.Samples),
		slog.Int("sample_rate", stats.SampleRate),
		slog.Float64("duration_seconds", stats.Duration),
		slog.Int("wav_bytes", len(wav)))

	staged, err := o.stager.Stage(wav)
	if err != nil {
		return &FaultError{State: StateEncoding, Message: "failed to stage encoded audio", Err: err}
	}

	transcript, err := o.transcribe(ctx, staged)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.run.Transcript = &transcript
	o.mu.Unlock()

	translation, err := callStage(ctx, o, StateTranslating, stage.Translate, func(ctx context.Context) (stage.Translation, error) {
		result, err := o.client.Translate(ctx, transcript.Text, o.cfg.InputLanguage, o.cfg.OutputLanguage)
		if err != nil {
			return stage.Translation{}, err
		}
		if strings.TrimSpace(result.Text) == "" {
			return stage.Translation{}, &stage.EmptyResultError{Stage: stage.Translate}
		}
		return result, nil
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.run.Translation = &translation
	o.mu.Unlock()

	synthesized, err := callStage(ctx, o, StateSynthesizing, stage.TTS, func(ctx context.Context) (stage.SynthesizedAudio, error) {
		result, err := o.client.Synthesize(ctx, translation.Text, o.cfg.OutputLanguage)
		if err != nil {
			return stage.SynthesizedAudio{}, err
		}
		if len(result.Data) == 0 {
			return stage.SynthesizedAudio{}, &stage.EmptyResultError{Stage: stage.TTS}
		}
		return result, nil
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.run.Audio = &synthesized
	o.mu.Unlock()

	return nil
}

// transcribe runs the STT stage. The staged audio is released before it
// returns, whatever the outcome.
func (o *Orchestrator) transcribe(ctx context.Context, staged StagedAudio) (stage.Transcript, error) {
	release := releaseOnce(staged, o.logger)
	defer release()

	return callStage(ctx, o, StateTranscribing, stage.STT, func(ctx context.Context) (stage.Transcript, error) {
		data, err := staged.Bytes()
		if err != nil {
			return stage.Transcript{}, &FaultError{State: StateTranscribing, Message: "failed to read staged audio", Err: err}
		}

		result, err := o.client.Transcribe(ctx, data, o.cfg.InputLanguage)
		if err != nil {
			return stage.Transcript{}, err
		}
		if strings.TrimSpace(result.Text) == "" {
			return stage.Transcript{}, &stage.EmptyResultError{Stage: stage.STT}
		}
		return result, nil
	})
}

// stageResult carries one stage call's outcome off its goroutine
type stageResult[T any] struct {
	value T
	err   error
}

// callStage moves the run into state and invokes fn under the stage timeout.
// fn runs on its own goroutine so a client that ignores ctx cannot hold the
// run past the bound; a result arriving after the deadline or a cancel is
// discarded.
func callStage[T any](ctx context.Context, o *Orchestrator, state State, s stage.Stage, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, canceled(string(s), err)
	}

	if err := o.transition(state); err != nil {
		return zero, err
	}

	ctx, span := o.tracer.Start(ctx, "pipeline."+string(s), trace.WithAttributes(
		attribute.String("run.id", o.run.ID),
		attribute.String("stage", string(s)),
	))
	defer span.End()

	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	done := make(chan stageResult[T], 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("Recovered panic in stage",
					slog.String("stage", string(s)),
					slog.Any("panic", r))
				done <- stageResult[T]{err: &FaultError{State: state, Message: fmt.Sprintf("panic: %v", r)}}
			}
		}()

		value, err := fn(stageCtx)
		done <- stageResult[T]{value: value, err: err}
	}()

	var result stageResult[T]
	select {
	case result = <-done:
	case <-stageCtx.Done():
		result.err = stageCtx.Err()
	}
	elapsed := time.Since(start).Seconds()

	if result.err == nil && stageCtx.Err() != nil {
		result.err = stageCtx.Err()
	}

	if result.err == nil {
		if o.metrics != nil {
			o.metrics.RecordStageSuccess(string(s), elapsed)
		}
		o.logger.Debug("Stage completed",
			slog.String("stage", string(s)),
			slog.Float64("duration_seconds", elapsed))
		return result.value, nil
	}

	err := classify(ctx, stageCtx, state, s, result.err)

	if o.metrics != nil {
		o.metrics.RecordStageFailure(string(s), failureKind(err), elapsed)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	o.logger.Warn("Stage failed",
		slog.String("stage", string(s)),
		slog.String("kind", failureKind(err)),
		slog.String("error", err.Error()))

	return zero, err
}

// classify maps a stage failure onto the run error taxonomy
func classify(ctx, stageCtx context.Context, state State, s stage.Stage, err error) error {
	if ctx.Err() != nil {
		return canceled(string(s), ctx.Err())
	}

	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return stage.NewTimeoutError(s)
	}

	var stageErr *stage.StageError
	var emptyErr *stage.EmptyResultError
	var faultErr *FaultError
	if errors.As(err, &stageErr) || errors.As(err, &emptyErr) || errors.As(err, &faultErr) {
		return err
	}

	return &FaultError{
		State:   state,
		Message: fmt.Sprintf("%s client returned an unclassified error: %v", s, err),
		Err:     err,
	}
}

func canceled(step string, cause error) error {
	return fmt.Errorf("%w during %s: %w", ErrCanceled, step, cause)
}

// failureKind labels err for metrics and logs
func failureKind(err error) string {
	var stageErr *stage.StageError
	var emptyErr *stage.EmptyResultError

	switch {
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.As(err, &stageErr):
		if stageErr.Status == stage.StatusTimeout {
			return "timeout"
		}
		return "status"
	case errors.As(err, &emptyErr):
		return "empty"
	default:
		return "fault"
	}
}

// rejectReason labels a rejected frame for metrics
func rejectReason(err error) string {
	var mismatch *audio.SampleRateMismatchError
	var invalid *audio.InvalidFrameError

	switch {
	case errors.As(err, &mismatch):
		return "sample_rate"
	case errors.As(err, &invalid):
		return "invalid"
	case errors.Is(err, audio.ErrCaptureLimit):
		return "limit"
	case errors.Is(err, audio.ErrClosedSession):
		return "closed"
	default:
		return "other"
	}
}

func (o *Orchestrator) transition(to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !CanTransition(o.run.State, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, o.run.State, to)
	}

	o.logger.Debug("Run state changed",
		slog.String("from", o.run.State.String()),
		slog.String("to", to.String()))
	o.run.State = to

	return nil
}

// fail records err and moves the run to Failed. A terminal run is left as is.
func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	if o.run.State.Terminal() {
		o.mu.Unlock()
		return
	}

	o.run.FailedIn = o.run.State
	o.run.State = StateFailed
	o.run.Err = err
	o.run.FinishedAt = time.Now()
	failedIn := o.run.FailedIn
	elapsed := o.elapsedLocked()
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RecordRunFailed(failedIn.String(), elapsed)
	}

	o.logger.Warn("Run failed",
		slog.String("failed_in", failedIn.String()),
		slog.String("error", err.Error()))

	o.closeDone()
}

func (o *Orchestrator) complete() {
	o.mu.Lock()
	if !CanTransition(o.run.State, StateComplete) {
		state := o.run.State
		o.mu.Unlock()
		o.fail(&FaultError{State: state, Message: fmt.Sprintf("run cannot complete from %s", state)})
		return
	}

	o.run.State = StateComplete
	o.run.FinishedAt = time.Now()
	elapsed := o.elapsedLocked()
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RecordRunCompleted(elapsed)
	}

	o.logger.Info("Run completed", slog.Float64("duration_seconds", elapsed))

	o.closeDone()
}

func (o *Orchestrator) elapsedLocked() float64 {
	if o.run.StartedAt.IsZero() {
		return 0
	}
	return o.run.FinishedAt.Sub(o.run.StartedAt).Seconds()
}

func (o *Orchestrator) closeDone() {
	o.doneOnce.Do(func() {
		close(o.done)
	})
}
