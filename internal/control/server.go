// Package control exposes the engine to the limitsmate CLI over a local HTTP API.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/goodtune/limitsmate/internal/engine"
	"github.com/goodtune/limitsmate/internal/report"
	"github.com/goodtune/limitsmate/internal/sfcli"
)

// Engine is the engine surface driven by the control API.
type Engine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	ShowReportWith(ctx context.Context, p report.Presenter) (*report.Document, error)
	DeleteLogs(ctx context.Context) (int, error)
	Status() engine.Status
}

// Config holds the control server configuration.
type Config struct {
	ListenAddr string
	// ReportOutput, when set, receives a copy of every HTML report.
	ReportOutput string
}

// Server is the control HTTP server.
type Server struct {
	config   Config
	engine   Engine
	feed     *Feed
	router   *mux.Router
	server   *http.Server
	listener net.Listener
	logger   zerolog.Logger

	mu         sync.RWMutex
	lastReport *report.Document
}

// NewServer creates a new control server.
func NewServer(cfg Config, eng Engine, feed *Feed, logger zerolog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		config: cfg,
		engine: eng,
		feed:   feed,
		router: router,
		logger: logger.With().Str("component", "control").Logger(),
	}

	s.setupRoutes()

	// Engine commands may spend minutes retrying the sf CLI, so writes are
	// not time-limited.
	s.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/engine/start", s.handleStart).Methods("POST")
	s.router.HandleFunc("/api/engine/stop", s.handleStop).Methods("POST")
	s.router.HandleFunc("/api/report", s.handleReport).Methods("POST")
	s.router.HandleFunc("/api/logs", s.handleDeleteLogs).Methods("DELETE")
	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/notifications", s.handleNotifications).Methods("GET")

	s.router.HandleFunc("/report", s.handleLastReport).Methods("GET")
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.config.ListenAddr)
		if err != nil {
			return fmt.Errorf("control server listen: %w", err)
		}
		s.listener = ln
	} else {
		s.logger.Debug().Msg("Using systemd socket-activated control listener")
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting control server")

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Control server error")
		}
	}()

	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.ListenAddr
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the control server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping control server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("control server shutdown: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"engine": s.engine.Status().State,
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Start(r.Context()); err != nil {
		writeEngineError(w, engine.CommandStart, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Message: engine.MsgEngineStarted,
		Status:  s.engine.Status(),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Stop(r.Context()); err != nil {
		writeEngineError(w, engine.CommandStop, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Message: engine.MsgEngineShutDown,
		Status:  s.engine.Status(),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	p, err := report.ForFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := s.engine.ShowReportWith(r.Context(), p)
	if err != nil {
		writeEngineError(w, engine.CommandReport, err)
		return
	}

	if doc.Format == report.FormatHTML {
		s.mu.Lock()
		s.lastReport = doc
		s.mu.Unlock()
		s.saveReport(doc)
	}

	writeDocument(w, doc)
}

func (s *Server) handleLastReport(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	doc := s.lastReport
	s.mu.RUnlock()

	if doc == nil {
		writeError(w, http.StatusNotFound, "no report has been generated yet")
		return
	}
	writeDocument(w, doc)
}

func (s *Server) handleDeleteLogs(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.DeleteLogs(r.Context())
	if err != nil {
		writeEngineError(w, engine.CommandDeleteLogs, err)
		return
	}

	msg := engine.MsgLogFilesDeleted
	if n == 0 {
		msg = engine.MsgNoLogFiles
	}
	writeJSON(w, http.StatusOK, DeleteLogsResponse{Message: msg, Deleted: n})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = n
	}
	writeJSON(w, http.StatusOK, NotificationsResponse{Notifications: s.feed.Since(after)})
}

// saveReport writes doc to the configured output file. Failures are logged;
// the report is still returned to the caller.
func (s *Server) saveReport(doc *report.Document) {
	if s.config.ReportOutput == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.config.ReportOutput), 0o755); err != nil {
		s.logger.Warn().Err(err).Str("path", s.config.ReportOutput).Msg("Failed to create report directory")
		return
	}
	if err := os.WriteFile(s.config.ReportOutput, doc.Body, 0o644); err != nil {
		s.logger.Warn().Err(err).Str("path", s.config.ReportOutput).Msg("Failed to write report")
		return
	}
	s.logger.Debug().Str("path", s.config.ReportOutput).Msg("Report written")
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var toolErr *sfcli.ExternalToolError
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning),
		errors.Is(err, engine.ErrNotRunning),
		errors.Is(err, engine.ErrAlreadyStopped),
		errors.Is(err, engine.ErrNotStarted),
		errors.Is(err, engine.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, sfcli.ErrToolNotInstalled),
		errors.Is(err, sfcli.ErrToolVersionTooLow):
		return http.StatusPreconditionFailed
	case errors.Is(err, sfcli.ErrInvalidSession):
		return http.StatusUnauthorized
	case errors.As(err, &toolErr):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, cmd engine.Command, err error) {
	writeError(w, statusFor(err), engine.UserMessage(cmd, err))
}

func writeDocument(w http.ResponseWriter, doc *report.Document) {
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set(HeaderReportView, string(doc.Kind))
	w.Header().Set(HeaderReportFormat, string(doc.Format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}
