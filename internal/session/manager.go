package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/skypro1111/voice-translate-service/internal/audio"
	"github.com/skypro1111/voice-translate-service/internal/metrics"
	"github.com/skypro1111/voice-translate-service/internal/pipeline"
	"github.com/skypro1111/voice-translate-service/internal/stage"
)

// removeSettleTimeout bounds how long RemoveSession waits for a cancelled run
const removeSettleTimeout = 10 * time.Second

// Config contains configuration for the session manager
type Config struct {
	IdleTimeout        time.Duration
	CleanupInterval    time.Duration
	StageTimeout       time.Duration
	MaxCaptureDuration time.Duration

	// Languages lists the accepted language codes. Empty accepts any code.
	Languages     []stage.Language
	DefaultInput  stage.Language
	DefaultOutput stage.Language

	Stager  pipeline.Stager
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

// Session is one user's translation session
type Session struct {
	ID           uint32
	CreatedAt    time.Time
	LastActivity time.Time

	current *activeRun
	lastRun *pipeline.Run

	runsStarted   uint64
	runsCompleted uint64
	runsFailed    uint64

	// slot admits a single non-terminal run
	slot *semaphore.Weighted

	// removing refuses new runs while the session is torn down
	removing bool

	mu sync.RWMutex
}

// activeRun pairs an orchestrator with the once guarding its settlement
type activeRun struct {
	orch *pipeline.Orchestrator
	once sync.Once
}

// SessionInfo represents session information for monitoring and APIs
type SessionInfo struct {
	SessionID     uint32              `json:"session_id"`
	CreatedAt     time.Time           `json:"created_at"`
	LastActivity  time.Time           `json:"last_activity"`
	Duration      time.Duration       `json:"duration"`
	RunsStarted   uint64              `json:"runs_started"`
	RunsCompleted uint64              `json:"runs_completed"`
	RunsFailed    uint64              `json:"runs_failed"`
	CurrentRun    *pipeline.RunInfo   `json:"current_run,omitempty"`
	Capture       *audio.CaptureStats `json:"capture,omitempty"`
	LastRun       *pipeline.RunInfo   `json:"last_run,omitempty"`
}

// Manager manages all translation sessions
type Manager struct {
	sessions map[uint32]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	client   stage.Client
	config   Config

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a new session manager and starts its cleanup routine
func NewManager(logger *slog.Logger, client stage.Client, config Config) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("stage client cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 5 * time.Minute
	}

	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}

	if config.DefaultInput != "" && !config.supports(config.DefaultInput) {
		return nil, fmt.Errorf("default input language %q: %w", config.DefaultInput, ErrUnsupportedLanguage)
	}

	if config.DefaultOutput != "" && !config.supports(config.DefaultOutput) {
		return nil, fmt.Errorf("default output language %q: %w", config.DefaultOutput, ErrUnsupportedLanguage)
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions: make(map[uint32]*Session),
		logger:   logger,
		client:   client,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr, nil
}

func (c Config) supports(lang stage.Language) bool {
	return len(c.Languages) == 0 || slices.Contains(c.Languages, lang)
}

// GetOrCreateSession returns the session for id, creating it if needed
func (m *Manager) GetOrCreateSession(id uint32) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[id]; ok {
		return existing
	}

	now := time.Now()
	session := &Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		slot:         semaphore.NewWeighted(1),
	}
	m.sessions[id] = session

	if m.config.Metrics != nil {
		m.config.Metrics.RecordSessionCreated()
		m.config.Metrics.SetActiveSessions(len(m.sessions))
	}

	m.logger.Info("Session created", slog.Uint64("session_id", uint64(id)))

	return session
}

// StartRun opens a new capture for the session. Empty languages fall back
// to the configured defaults.
func (m *Manager) StartRun(id uint32, input, output stage.Language) (*pipeline.Orchestrator, error) {
	if m.ctx.Err() != nil {
		return nil, fmt.Errorf("session manager stopped")
	}

	if input == "" {
		input = m.config.DefaultInput
	}
	if output == "" {
		output = m.config.DefaultOutput
	}

	if !m.config.supports(input) {
		return nil, fmt.Errorf("input language %q: %w", input, ErrUnsupportedLanguage)
	}
	if !m.config.supports(output) {
		return nil, fmt.Errorf("output language %q: %w", output, ErrUnsupportedLanguage)
	}

	session := m.GetOrCreateSession(id)

	if !session.acquireSlot() {
		return nil, ErrRunActive
	}

	orch, err := pipeline.NewOrchestrator(m.client, pipeline.Config{
		InputLanguage:      input,
		OutputLanguage:     output,
		StageTimeout:       m.config.StageTimeout,
		MaxCaptureDuration: m.config.MaxCaptureDuration,
	}, m.orchestratorOptions(id)...)
	if err != nil {
		session.slot.Release(1)
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	if err := orch.Start(); err != nil {
		session.slot.Release(1)
		return nil, err
	}

	run := &activeRun{orch: orch}

	session.mu.Lock()
	if session.removing {
		session.mu.Unlock()
		orch.Cancel()
		session.slot.Release(1)
		return nil, fmt.Errorf("session %d is being removed: %w", id, ErrRunActive)
	}
	session.current = run
	session.runsStarted++
	session.LastActivity = time.Now()
	session.mu.Unlock()

	go m.watchRun(session, run)

	m.logger.Info("Run started for session",
		slog.Uint64("session_id", uint64(id)),
		slog.String("run_id", orch.ID()),
		slog.String("input_language", string(input)),
		slog.String("output_language", string(output)))

	return orch, nil
}

func (m *Manager) orchestratorOptions(id uint32) []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithLogger(m.logger.With(slog.Uint64("session_id", uint64(id)))),
		pipeline.WithMetrics(m.config.Metrics),
	}
	if m.config.Stager != nil {
		opts = append(opts, pipeline.WithStager(m.config.Stager))
	}
	if m.config.Tracer != nil {
		opts = append(opts, pipeline.WithTracer(m.config.Tracer))
	}
	return opts
}

// acquireSlot takes the run slot. A slot still held by a run that already
// reached a terminal state is settled first.
func (s *Session) acquireSlot() bool {
	if s.slot.TryAcquire(1) {
		return true
	}

	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()

	if current == nil {
		return false
	}

	select {
	case <-current.orch.Done():
		s.settle(current)
		return s.slot.TryAcquire(1)
	default:
		return false
	}
}

// watchRun settles run once it terminates, cancelling it if the manager stops
func (m *Manager) watchRun(session *Session, run *activeRun) {
	select {
	case <-run.orch.Done():
	case <-m.ctx.Done():
		run.orch.Cancel()
		<-run.orch.Done()
	}
	session.settle(run)
}

// settle records the terminal run and frees the run slot, once per run
func (s *Session) settle(run *activeRun) {
	run.once.Do(func() {
		snapshot := run.orch.Snapshot()

		s.mu.Lock()
		s.lastRun = &snapshot
		if s.current == run {
			s.current = nil
		}
		if snapshot.State == pipeline.StateComplete {
			s.runsCompleted++
		} else {
			s.runsFailed++
		}
		s.mu.Unlock()

		s.slot.Release(1)
	})
}

// AppendFrame adds a captured frame to the session's active run
func (m *Manager) AppendFrame(id uint32, frame audio.Frame) error {
	session, run, err := m.activeRun(id)
	if err != nil {
		return err
	}

	session.touch()
	return run.orch.Append(frame)
}

// FinishRun ends capture and drives the active run to a terminal state
func (m *Manager) FinishRun(ctx context.Context, id uint32) (pipeline.Run, error) {
	session, run, err := m.activeRun(id)
	if err != nil {
		return pipeline.Run{}, err
	}

	session.touch()

	result, err := run.orch.Finish(ctx)
	if result.State.Terminal() {
		session.settle(run)
	}

	m.logger.Info("Run finished for session",
		slog.Uint64("session_id", uint64(id)),
		slog.String("run_id", result.ID),
		slog.String("state", result.State.String()))

	return result, err
}

// CancelRun aborts the session's active run
func (m *Manager) CancelRun(id uint32) error {
	session, run, err := m.activeRun(id)
	if err != nil {
		return err
	}

	session.touch()
	run.orch.Cancel()

	// A run in a remote stage terminates on its own goroutine
	select {
	case <-run.orch.Done():
		session.settle(run)
	default:
	}

	m.logger.Info("Run cancelled for session",
		slog.Uint64("session_id", uint64(id)),
		slog.String("run_id", run.orch.ID()))

	return nil
}

func (m *Manager) activeRun(id uint32) (*Session, *activeRun, error) {
	session, ok := m.GetSession(id)
	if !ok {
		return nil, nil, ErrSessionNotFound
	}

	session.mu.RLock()
	run := session.current
	session.mu.RUnlock()

	if run == nil {
		return session, nil, ErrNoActiveRun
	}

	return session, run, nil
}

// LastRun returns the most recent terminal run of the session
func (m *Manager) LastRun(id uint32) (pipeline.Run, error) {
	session, ok := m.GetSession(id)
	if !ok {
		return pipeline.Run{}, ErrSessionNotFound
	}

	session.mu.RLock()
	defer session.mu.RUnlock()

	if session.lastRun == nil {
		return pipeline.Run{}, ErrNoActiveRun
	}
	return *session.lastRun, nil
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(id uint32) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	return session, ok
}

// GetActiveSessionCount returns the number of sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns all sessions
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// RemoveSession cancels any active run and removes the session. The
// session stays registered until its run settles, so a new run for the same
// ID cannot overlap the cancelled one.
func (m *Manager) RemoveSession(id uint32) bool {
	session, ok := m.GetSession(id)
	if !ok {
		return false
	}

	session.mu.Lock()
	if session.removing {
		session.mu.Unlock()
		return false
	}
	session.removing = true
	run := session.current
	session.mu.Unlock()

	if run != nil {
		run.orch.Cancel()

		timer := time.NewTimer(removeSettleTimeout)
		select {
		case <-run.orch.Done():
			session.settle(run)
		case <-timer.C:
			m.logger.Warn("Run did not settle before session removal",
				slog.Uint64("session_id", uint64(id)),
				slog.String("run_id", run.orch.ID()),
				slog.Duration("waited", removeSettleTimeout))
		}
		timer.Stop()
	}

	m.mu.Lock()
	if m.sessions[id] == session {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if m.config.Metrics != nil {
		m.config.Metrics.RecordSessionRemoved()
		m.config.Metrics.SetActiveSessions(count)
	}

	m.logger.Info("Session removed",
		slog.Uint64("session_id", uint64(id)),
		slog.Duration("duration", time.Since(session.CreatedAt)))

	return true
}

// Stop cancels all runs and stops the cleanup routine
func (m *Manager) Stop() {
	m.logger.Info("Stopping session manager")

	m.cancel()
	<-m.cleanup

	m.mu.RLock()
	ids := make([]uint32, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.RemoveSession(id)
	}

	m.logger.Info("Session manager stopped")
}

func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	m.logger.Info("Session cleanup routine started",
		slog.Duration("timeout", m.config.IdleTimeout),
		slog.Duration("check_interval", m.config.CleanupInterval))

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions removes sessions that have been inactive for too long
func (m *Manager) cleanupExpiredSessions() {
	now := time.Now()
	expired := make([]uint32, 0)

	m.mu.RLock()
	for id, session := range m.sessions {
		session.mu.RLock()
		lastActivity := session.LastActivity
		session.mu.RUnlock()

		if now.Sub(lastActivity) > m.config.IdleTimeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) > 0 {
		m.logger.Info("Cleaning up expired sessions", slog.Int("expired_count", len(expired)))

		for _, id := range expired {
			m.RemoveSession(id)
		}
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// GetSessionInfo returns session information for monitoring and APIs
func (s *Session) GetSessionInfo() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := SessionInfo{
		SessionID:     s.ID,
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.LastActivity,
		Duration:      time.Since(s.CreatedAt),
		RunsStarted:   s.runsStarted,
		RunsCompleted: s.runsCompleted,
		RunsFailed:    s.runsFailed,
	}

	if s.current != nil {
		current := s.current.orch.Snapshot().Info()
		info.CurrentRun = &current
		if stats, ok := s.current.orch.CaptureStats(); ok {
			info.Capture = &stats
		}
	}
	if s.lastRun != nil {
		last := s.lastRun.Info()
		info.LastRun = &last
	}

	return info
}
