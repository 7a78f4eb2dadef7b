// Package engine runs the limitsmate capture session: it enables debug logging
// for the org user, polls for new logs and builds governor limit reports.
package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goodtune/limitsmate/internal/limits"
	"github.com/goodtune/limitsmate/internal/metrics"
	"github.com/goodtune/limitsmate/internal/report"
	"github.com/goodtune/limitsmate/internal/sfcli"
)

const (
	DefaultMinVersion      = "1.77.1"
	DefaultPollInterval    = 2 * time.Minute
	DefaultSessionDuration = 2 * time.Hour
	DefaultTraceDuration   = 2 * time.Hour
	DefaultPageSize        = 10
	DefaultThreshold       = 50
)

// cleanupTimeout bounds the trace flag delete of a Start that lost a race
// with Close.
const cleanupTimeout = 30 * time.Second

// Gateway is the subset of the sf CLI gateway used by the engine.
type Gateway interface {
	ValidateToolPresent(ctx context.Context) error
	ValidateMinimumVersion(ctx context.Context, minVersion string) error
	GetLoggedInUser(ctx context.Context) (sfcli.User, error)
	GetOrCreateDebugLevel(ctx context.Context) (string, error)
	GetOrUpsertTraceFlag(ctx context.Context, userID, debugLevelID string, expiry time.Time) (string, error)
	DeleteTraceFlag(ctx context.Context, id string) error
	QueryNewLogs(ctx context.Context, userID string, pageSize int, fetchAll bool, cursor time.Time) ([]sfcli.LogRecord, error)
	FetchLogBody(ctx context.Context, logID, dir string) error
}

// Settings supplies report settings, read again for every report.
type Settings interface {
	Threshold() int
	Namespace() string
}

// StaticSettings is a fixed Settings value.
type StaticSettings struct {
	ThresholdPercent int
	NamespaceName    string
}

func (s StaticSettings) Threshold() int { return s.ThresholdPercent }

func (s StaticSettings) Namespace() string {
	if s.NamespaceName == "" {
		return limits.DefaultNamespace
	}
	return s.NamespaceName
}

// Config holds engine configuration.
type Config struct {
	LogDir          string
	MinVersion      string
	PollInterval    time.Duration
	SessionDuration time.Duration
	TraceDuration   time.Duration
	PageSize        int
	CacheSize       int
}

// Deps are the collaborators of an Engine. Only Gateway is required.
type Deps struct {
	Gateway   Gateway
	Settings  Settings
	Presenter report.Presenter
	Notifier  Notifier
	Clock     Clock
}

// Status is a snapshot of the engine.
type Status struct {
	State   State    `json:"state"`
	Session *Session `json:"session,omitempty"`
	LogDir  string   `json:"log_dir"`
}

// Engine owns the single capture session. All exported methods are safe for
// concurrent use.
type Engine struct {
	cfg       Config
	gateway   Gateway
	settings  Settings
	presenter report.Presenter
	notifier  Notifier
	clock     Clock
	cache     *limits.Cache
	logger    zerolog.Logger

	// Remote commands run on baseCtx so a Stop does not abort in-flight work.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu          sync.Mutex
	session     *Session
	generation  uint64
	starting    bool
	stopping    bool
	closed      bool
	stopPolling context.CancelFunc
	expiry      *time.Timer
	pollers     sync.WaitGroup

	// discoverMu serializes discovery passes.
	discoverMu sync.Mutex

	// reportMu guards report.
	reportMu sync.Mutex
	report   *limits.Report
}

// New creates an engine in the Idle state.
func New(cfg Config, deps Deps, logger zerolog.Logger) (*Engine, error) {
	if deps.Gateway == nil {
		return nil, errors.New("engine: gateway is required")
	}
	if cfg.LogDir == "" {
		return nil, errors.New("engine: log directory is required")
	}
	if cfg.MinVersion == "" {
		cfg.MinVersion = DefaultMinVersion
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = DefaultSessionDuration
	}
	if cfg.TraceDuration <= 0 {
		cfg.TraceDuration = DefaultTraceDuration
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	logger = logger.With().Str("component", "engine").Logger()

	if deps.Settings == nil {
		deps.Settings = StaticSettings{ThresholdPercent: DefaultThreshold}
	}
	if deps.Presenter == nil {
		p, err := report.NewHTMLPresenter()
		if err != nil {
			return nil, err
		}
		deps.Presenter = p
	}
	if deps.Notifier == nil {
		deps.Notifier = NewLogNotifier(logger)
	}
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}

	cache, err := limits.NewCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	metrics.EngineState.Set(float64(StateIdle))

	return &Engine{
		cfg:        cfg,
		gateway:    deps.Gateway,
		settings:   deps.Settings,
		presenter:  deps.Presenter,
		notifier:   deps.Notifier,
		clock:      deps.Clock,
		cache:      cache,
		logger:     logger,
		baseCtx:    ctx,
		cancelBase: cancel,
		report:     limits.NewReport(),
	}, nil
}

// LogDir returns the directory log bodies are downloaded to.
func (e *Engine) LogDir() string {
	return e.cfg.LogDir
}

// Start validates the sf CLI, enables debug logging for the org user and
// begins polling. It fails with ErrAlreadyRunning while a session is running.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := e.detach(ctx)
	defer cancel()

	if err := e.start(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Start failed")
		e.notifier.Error(UserMessage(CommandStart, err))
		return err
	}
	e.notifier.Info(MsgEngineStarted)
	return nil
}

func (e *Engine) start(ctx context.Context) error {
	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return ErrClosed
	case e.starting, e.session != nil && e.session.State == StateRunning:
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.starting = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.starting = false
		e.mu.Unlock()
	}()

	if err := e.gateway.ValidateToolPresent(ctx); err != nil {
		return err
	}
	if err := e.gateway.ValidateMinimumVersion(ctx, e.cfg.MinVersion); err != nil {
		return err
	}
	if err := os.MkdirAll(e.cfg.LogDir, 0o755); err != nil {
		return &FileSystemError{Op: "create", Path: e.cfg.LogDir, Err: err}
	}

	s := newSession(uuid.NewString(), e.clock.Now())
	logger := e.logger.With().Str("session", s.ID).Logger()

	user, err := e.gateway.GetLoggedInUser(ctx)
	if err != nil {
		return err
	}
	debugLevelID, err := e.gateway.GetOrCreateDebugLevel(ctx)
	if err != nil {
		return err
	}
	traceFlagID, err := e.gateway.GetOrUpsertTraceFlag(ctx, user.UserID, debugLevelID, s.InitTimestamp.Add(e.cfg.TraceDuration))
	if err != nil {
		return err
	}

	s.UserID = user.UserID
	s.UserName = user.UserName
	s.DebugLevelID = debugLevelID
	s.TraceFlagID = traceFlagID
	s.State = StateRunning

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.removeOrphanedTraceFlag(ctx, traceFlagID)
		return ErrClosed
	}
	e.generation++
	gen := e.generation
	e.session = s

	pollCtx, cancel := context.WithCancel(e.baseCtx)
	e.stopPolling = cancel
	e.expiry = time.AfterFunc(e.cfg.SessionDuration, func() { e.expire(gen) })
	e.pollers.Add(1)
	e.mu.Unlock()

	go e.poll(pollCtx, gen)

	metrics.EngineState.Set(float64(StateRunning))
	logger.Info().
		Str("user", user.UserName).
		Str("trace_flag_id", traceFlagID).
		Dur("poll_interval", e.cfg.PollInterval).
		Dur("session_duration", e.cfg.SessionDuration).
		Msg("Engine started")
	return nil
}

// removeOrphanedTraceFlag deletes a trace flag created by a Start that can no
// longer complete.
func (e *Engine) removeOrphanedTraceFlag(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := e.gateway.DeleteTraceFlag(ctx, id); err != nil {
		e.logger.Error().Err(err).Str("trace_flag_id", id).Msg("Failed to delete trace flag of aborted start")
	}
}

// detach returns a context for remote commands that survives cancellation of
// ctx and ends only when the engine is closed.
func (e *Engine) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	release := context.AfterFunc(e.baseCtx, cancel)
	return ctx, func() {
		release()
		cancel()
	}
}

// Stop deletes the trace flag and ends polling. If the remote delete fails the
// session stays running.
func (e *Engine) Stop(ctx context.Context) error {
	ctx, cancel := e.detach(ctx)
	defer cancel()

	if err := e.stop(ctx, 0); err != nil {
		e.logger.Error().Err(err).Msg("Stop failed")
		e.notifier.Error(UserMessage(CommandStop, err))
		return err
	}
	e.notifier.Info(MsgEngineShutDown)
	return nil
}

// stop ends the current session. A non-zero gen restricts it to that session.
func (e *Engine) stop(ctx context.Context, gen uint64) error {
	e.mu.Lock()
	switch {
	case e.session == nil:
		e.mu.Unlock()
		return ErrNotRunning
	case e.session.State == StateStopped:
		e.mu.Unlock()
		return ErrAlreadyStopped
	case e.stopping:
		e.mu.Unlock()
		return ErrBusy
	case gen != 0 && gen != e.generation:
		e.mu.Unlock()
		return ErrAlreadyStopped
	}
	e.stopping = true
	s := e.session
	traceFlagID := s.TraceFlagID
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.stopping = false
		e.mu.Unlock()
	}()

	if err := e.gateway.DeleteTraceFlag(ctx, traceFlagID); err != nil {
		return err
	}

	e.mu.Lock()
	e.cancelTimersLocked()
	s.teardown()
	e.generation++
	e.mu.Unlock()

	metrics.EngineState.Set(float64(StateStopped))
	e.logger.Info().Str("session", s.ID).Msg("Engine stopped")
	return nil
}

// expire stops the session gen when its duration elapses. It does nothing if
// that session has already been stopped or replaced. While another Stop is in
// flight, or when the stop fails, it tries again after the poll interval so an
// expired session never keeps running.
func (e *Engine) expire(gen uint64) {
	e.mu.Lock()
	if !e.isCurrentLocked(gen) || e.closed {
		e.mu.Unlock()
		return
	}
	if e.stopping {
		e.rearmExpiryLocked(gen)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.logger.Info().Msg("Session expired")
	err := e.stop(e.baseCtx, gen)
	switch {
	case err == nil:
		e.notifier.Info(MsgSessionTimedOut)
	case errors.Is(err, ErrAlreadyStopped), errors.Is(err, ErrNotRunning):
	case errors.Is(err, ErrBusy):
		e.rearmExpiry(gen)
	default:
		e.logger.Error().Err(err).Msg("Failed to stop expired session")
		e.notifier.Error(UserMessage(CommandStop, err))
		e.rearmExpiry(gen)
	}
}

func (e *Engine) rearmExpiry(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isCurrentLocked(gen) && !e.closed {
		e.rearmExpiryLocked(gen)
	}
}

// rearmExpiryLocked schedules another expiry attempt. Caller holds mu.
func (e *Engine) rearmExpiryLocked(gen uint64) {
	if e.expiry != nil {
		e.expiry.Stop()
	}
	e.expiry = time.AfterFunc(e.cfg.PollInterval, func() { e.expire(gen) })
	e.logger.Debug().Dur("retry_in", e.cfg.PollInterval).Msg("Session expiry postponed")
}

// cancelTimersLocked stops polling and the expiry timer. Caller holds mu.
func (e *Engine) cancelTimersLocked() {
	if e.stopPolling != nil {
		e.stopPolling()
		e.stopPolling = nil
	}
	if e.expiry != nil {
		e.expiry.Stop()
		e.expiry = nil
	}
}

func (e *Engine) poll(ctx context.Context, gen uint64) {
	defer e.pollers.Done()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.isCurrent(gen) {
				return
			}
			if err := e.discover(e.baseCtx, false, "tick"); err != nil {
				e.logger.Warn().Err(err).Msg("Log discovery failed")
			}
		}
	}
}

func (e *Engine) isCurrent(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isCurrentLocked(gen)
}

func (e *Engine) isCurrentLocked(gen uint64) bool {
	return e.session != nil && e.session.State == StateRunning && e.generation == gen
}

// ShowReport renders the report with the configured presenter.
func (e *Engine) ShowReport(ctx context.Context) (*report.Document, error) {
	return e.ShowReportWith(ctx, e.presenter)
}

// ShowReportWith fetches every log since the last fetch, rescans the session's
// log files and renders the result with p. It fails with ErrNotStarted before
// the first successful Start.
func (e *Engine) ShowReportWith(ctx context.Context, p report.Presenter) (*report.Document, error) {
	ctx, cancel := e.detach(ctx)
	defer cancel()

	doc, err := e.showReport(ctx, p)
	if err != nil {
		e.logger.Error().Err(err).Msg("Report failed")
		e.notifier.Error(UserMessage(CommandReport, err))
		return nil, err
	}
	return doc, nil
}

func (e *Engine) showReport(ctx context.Context, p report.Presenter) (*report.Document, error) {
	if p == nil {
		p = e.presenter
	}

	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil, ErrNotStarted
	}
	e.mu.Unlock()

	e.reportMu.Lock()
	defer e.reportMu.Unlock()

	if err := e.discover(ctx, true, "report"); err != nil {
		return nil, err
	}

	e.mu.Lock()
	s := e.session
	s.bumpLookAhead()
	initTimestamp := s.InitTimestamp
	e.mu.Unlock()

	threshold := e.settings.Threshold()
	namespace := e.settings.Namespace()

	e.report.Reset()
	seen, err := e.scan(initTimestamp, namespace, threshold, e.report)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if seen {
		s.LogsSeen = true
	}
	logsSeen := s.LogsSeen
	e.mu.Unlock()

	kind := chooseView(logsSeen, e.report.Len())
	for _, count := range e.report.Aggregate() {
		metrics.LimitEntriesTotal.WithLabelValues(count.Description).Add(float64(count.Count))
	}

	doc, err := p.Render(report.View{
		Kind:        kind,
		Report:      e.report,
		Threshold:   threshold,
		Namespace:   namespace,
		GeneratedAt: e.clock.Now(),
		DisplayName: filepath.Base,
		Link:        fileURL,
	})
	if err != nil {
		return nil, err
	}

	metrics.ReportsRenderedTotal.WithLabelValues(string(kind)).Inc()
	e.logger.Info().
		Str("view", string(kind)).
		Int("files", e.report.Len()).
		Int("threshold", threshold).
		Str("namespace", namespace).
		Msg("Report rendered")
	return doc, nil
}

func chooseView(logsSeen bool, files int) report.ViewKind {
	switch {
	case !logsSeen && files == 0:
		return report.ViewError
	case files == 0:
		return report.ViewAllClear
	default:
		return report.ViewConsumption
	}
}

func fileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}

// DeleteLogs removes every downloaded log file and returns how many were
// removed. It does not depend on the session state.
func (e *Engine) DeleteLogs(ctx context.Context) (int, error) {
	n, err := e.deleteLogs()
	if err != nil {
		e.logger.Error().Err(err).Msg("Delete logs failed")
		e.notifier.Error(UserMessage(CommandDeleteLogs, err))
		return n, err
	}
	if n == 0 {
		e.notifier.Info(MsgNoLogFiles)
	} else {
		e.notifier.Info(MsgLogFilesDeleted)
	}
	return n, nil
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{State: StateIdle, LogDir: e.cfg.LogDir}
	if e.session != nil {
		s := *e.session
		st.State = s.State
		st.Session = &s
	}
	return st
}

// Close cancels polling, the expiry timer and in-flight remote commands. It
// does not delete the trace flag; call Stop first for a clean shutdown.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.cancelTimersLocked()
	e.mu.Unlock()

	e.cancelBase()
	e.pollers.Wait()
	return nil
}
