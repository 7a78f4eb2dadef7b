package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goodtune/limitsmate/internal/config"
	"github.com/goodtune/limitsmate/internal/control"
	"github.com/goodtune/limitsmate/internal/engine"
	"github.com/goodtune/limitsmate/internal/metrics"
	"github.com/goodtune/limitsmate/internal/report"
	"github.com/goodtune/limitsmate/internal/sfcli"
	"github.com/goodtune/limitsmate/internal/systemd"
)

// shutdownTimeout bounds the trace flag cleanup on daemon exit.
const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the limitsmate daemon",
	Long: `Run the daemon that owns the capture session. It serves the control API
used by the other commands and, when enabled, a Prometheus metrics endpoint.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging, os.Stderr)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("workspace", cfg.Workspace).
		Msg("Starting limitsmate")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running under systemd socket activation")
	}

	// Initialize sf CLI gateway
	gateway := sfcli.New(sfcli.Config{
		Binary:     cfg.CLI.Binary,
		Retries:    uint64(cfg.CLI.Retries),
		RetryDelay: parseDuration(cfg.CLI.RetryDelay, 30*time.Second),
	}, sfcli.ExecRunner{Dir: cfg.Workspace}, logger)

	// Report settings follow the config file
	live := config.NewLive(cfg.Report)
	if err := config.Watch(configPath, live, logger); err != nil {
		logger.Warn().Err(err).Msg("Config file not watched; report settings are fixed until restart")
	}

	feed := control.NewFeed(control.DefaultFeedSize, logger)

	presenter, err := report.NewHTMLPresenter()
	if err != nil {
		return fmt.Errorf("failed to initialize report presenter: %w", err)
	}

	// Initialize Engine
	eng, err := engine.New(engine.Config{
		LogDir:          cfg.LogDir(),
		MinVersion:      cfg.CLI.MinVersion,
		PollInterval:    parseDuration(cfg.Engine.PollInterval, engine.DefaultPollInterval),
		SessionDuration: parseDuration(cfg.Engine.SessionDuration, engine.DefaultSessionDuration),
		TraceDuration:   parseDuration(cfg.Engine.TraceDuration, engine.DefaultTraceDuration),
		PageSize:        cfg.Engine.PageSize,
		CacheSize:       cfg.Report.CacheSize,
	}, engine.Deps{
		Gateway:   gateway,
		Settings:  live,
		Presenter: presenter,
		Notifier:  systemd.NewStatusNotifier(feed),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close engine")
		}
	}()

	logger.Info().Str("log_dir", eng.LogDir()).Msg("Engine initialized")

	// Initialize Control Server
	controlServer := control.NewServer(control.Config{
		ListenAddr:   cfg.Server.ControlAddr,
		ReportOutput: cfg.ReportOutput(),
	}, eng, feed, logger)
	if sdListeners.Control != nil {
		controlServer.SetListener(sdListeners.Control)
	}
	if err := controlServer.Start(); err != nil {
		return fmt.Errorf("failed to start control server: %w", err)
	}

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsEnabled || sdListeners.Metrics != nil {
		metricsServer = metrics.NewServer(cfg.Server.MetricsAddr, logger)
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			_ = controlServer.Stop()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	logger.Info().Str("control", controlServer.Addr()).Msg("limitsmate startup complete")

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd of readiness")
	}
	_ = systemd.NotifyStatus("Engine idle")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd of stopping")
	}

	// Stop the control server first so no new session starts mid-shutdown
	if err := controlServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping control server")
	}

	// Remove the trace flag of a running session. Closing the engine after
	// the timeout cancels a delete that is still running.
	if eng.Status().State == engine.StateRunning {
		done := make(chan error, 1)
		go func() { done <- eng.Stop(context.Background()) }()
		select {
		case err := <-done:
			if err != nil {
				logger.Error().Err(err).Msg("Failed to stop engine")
			}
		case <-time.After(shutdownTimeout):
			logger.Error().Dur("timeout", shutdownTimeout).Msg("Timed out removing trace flag")
		}
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("limitsmate stopped")
	return nil
}
