package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// CLI gateway metrics
	CLICommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limitsmate_cli_commands_total",
			Help: "Total sf CLI operations executed, by outcome",
		},
		[]string{"operation", "result"},
	)

	CLICommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "limitsmate_cli_command_duration_seconds",
			Help:    "sf CLI operation duration in seconds, including retries",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 180},
		},
		[]string{"operation"},
	)

	CLIRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limitsmate_cli_retries_total",
			Help: "Total retried sf CLI attempts",
		},
		[]string{"operation"},
	)

	// Engine metrics
	EngineState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "limitsmate_engine_state",
			Help: "Current engine state (0=idle, 1=running, 2=stopped)",
		},
	)

	DiscoveryPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limitsmate_discovery_passes_total",
			Help: "Total log discovery passes, by trigger and outcome",
		},
		[]string{"trigger", "result"},
	)

	LogsDownloadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "limitsmate_logs_downloaded_total",
			Help: "Total debug log bodies downloaded",
		},
	)

	// Report metrics
	ReportsRenderedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limitsmate_reports_rendered_total",
			Help: "Total reports rendered, by view",
		},
		[]string{"view"},
	)

	LimitEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limitsmate_limit_entries_total",
			Help: "Limit usage entries at or above threshold seen in reports",
		},
		[]string{"limit"},
	)

	ParseCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "limitsmate_parse_cache_hits_total",
			Help: "Parsed log cache hits",
		},
	)

	ParseCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "limitsmate_parse_cache_misses_total",
			Help: "Parsed log cache misses",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CLICommandsTotal,
		CLICommandDuration,
		CLIRetriesTotal,
		EngineState,
		DiscoveryPassesTotal,
		LogsDownloadedTotal,
		ReportsRenderedTotal,
		LimitEntriesTotal,
		ParseCacheHits,
		ParseCacheMisses,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
