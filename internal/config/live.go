package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Live holds the report settings that may change while the daemon runs.
type Live struct {
	mu        sync.RWMutex
	threshold int
	namespace string
}

// NewLive creates live settings from a loaded report config.
func NewLive(r ReportConfig) *Live {
	l := &Live{}
	l.Update(r)
	return l
}

// Update replaces the live settings.
func (l *Live) Update(r ReportConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.threshold = r.Threshold
	l.namespace = NormalizeNamespace(r.Namespace)
}

// Threshold returns the minimum percentage reported.
func (l *Live) Threshold() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.threshold
}

// Namespace returns the namespace whose limit block is read.
func (l *Live) Namespace() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.namespace
}

// Watch reloads configPath whenever it changes and applies the report
// settings to live. Invalid edits are logged and ignored. Other settings only
// take effect after a restart.
func Watch(configPath string, live *Live, logger zerolog.Logger) error {
	if configPath == "" {
		configPath = DefaultPath
	}
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("cannot watch config file: %w", err)
	}

	logger = logger.With().Str("component", "config").Logger()

	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid configuration change")
			return
		}
		live.Update(cfg.Report)
		logger.Info().
			Str("file", e.Name).
			Int("threshold", cfg.Report.Threshold).
			Str("namespace", cfg.Report.Namespace).
			Msg("Configuration reloaded")
	})
	v.WatchConfig()

	logger.Debug().Str("file", configPath).Msg("Watching configuration file")
	return nil
}
