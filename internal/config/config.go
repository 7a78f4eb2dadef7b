package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "limitsmate.yaml"

// DefaultNamespace is the sentinel for code outside any managed package.
const DefaultNamespace = "(default)"

// Config holds the complete application configuration
type Config struct {
	Workspace string        `mapstructure:"workspace" yaml:"workspace"`
	Server    ServerConfig  `mapstructure:"server" yaml:"server"`
	CLI       CLIConfig     `mapstructure:"cli" yaml:"cli"`
	Engine    EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Report    ReportConfig  `mapstructure:"report" yaml:"report"`
	Logging   LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig defines the daemon listeners
type ServerConfig struct {
	ControlAddr    string `mapstructure:"control_addr" yaml:"control_addr"`
	MetricsAddr    string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// CLIConfig defines how the sf CLI is invoked
type CLIConfig struct {
	Binary     string `mapstructure:"binary" yaml:"binary"`
	MinVersion string `mapstructure:"min_version" yaml:"min_version"`
	Retries    int    `mapstructure:"retries" yaml:"retries"`
	RetryDelay string `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// EngineConfig defines capture session settings
type EngineConfig struct {
	LogDir          string `mapstructure:"log_dir" yaml:"log_dir"`
	PollInterval    string `mapstructure:"poll_interval" yaml:"poll_interval"`
	PageSize        int    `mapstructure:"page_size" yaml:"page_size"`
	SessionDuration string `mapstructure:"session_duration" yaml:"session_duration"`
	TraceDuration   string `mapstructure:"trace_duration" yaml:"trace_duration"`
}

// ReportConfig defines report settings. Threshold and Namespace are re-read
// for every report.
type ReportConfig struct {
	Threshold int    `mapstructure:"threshold" yaml:"threshold"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	Output    string `mapstructure:"output" yaml:"output"`
	CacheSize int    `mapstructure:"cache_size" yaml:"cache_size"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	return decode(v)
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	setDefaults(v, runtime.GOOS)

	if configPath == "" {
		configPath = DefaultPath
	}
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("LIMITSMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Defaults returns the configuration used when no file or environment
// override is present.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v, runtime.GOOS)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// ValidKeys returns the set of recognised configuration keys.
func ValidKeys() map[string]bool {
	v := viper.New()
	setDefaults(v, runtime.GOOS)
	keys := make(map[string]bool)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	return keys
}

// UnknownKeys reads the config file at path and returns the keys it sets
// that are not recognised, sorted.
func UnknownKeys(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	valid := ValidKeys()
	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	// SetConfigFile reports a missing explicit file as a path error.
	return errors.Is(err, fs.ErrNotExist)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values. Windows hosts poll and
// retry less eagerly.
func setDefaults(v *viper.Viper, goos string) {
	v.SetDefault("workspace", ".")

	// Server defaults
	v.SetDefault("server.control_addr", "127.0.0.1:7311")
	v.SetDefault("server.metrics_addr", "127.0.0.1:9311")
	v.SetDefault("server.metrics_enabled", false)

	// CLI defaults
	v.SetDefault("cli.binary", "sf")
	v.SetDefault("cli.min_version", "1.77.1")
	v.SetDefault("cli.retries", 3)
	v.SetDefault("cli.retry_delay", "30s")

	// Engine defaults
	v.SetDefault("engine.log_dir", filepath.Join(".sf", "tools", "limitsmate", "logs"))
	v.SetDefault("engine.poll_interval", "2m")
	v.SetDefault("engine.page_size", 10)
	v.SetDefault("engine.session_duration", "2h")
	v.SetDefault("engine.trace_duration", "2h")

	if goos == "windows" {
		v.SetDefault("cli.retry_delay", "60s")
		v.SetDefault("engine.poll_interval", "5m")
	}

	// Report defaults
	v.SetDefault("report.threshold", 50)
	v.SetDefault("report.namespace", "default")
	v.SetDefault("report.output", "")
	v.SetDefault("report.cache_size", 256)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.ControlAddr == "" {
		return fmt.Errorf("server control address is required")
	}
	if cfg.Server.MetricsEnabled && cfg.Server.MetricsAddr == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}

	if cfg.CLI.Binary == "" {
		cfg.CLI.Binary = "sf"
	}
	if cfg.CLI.Retries < 0 {
		return fmt.Errorf("invalid CLI retries: %d", cfg.CLI.Retries)
	}

	if cfg.Engine.LogDir == "" {
		return fmt.Errorf("engine log directory is required")
	}
	if cfg.Engine.PageSize <= 0 || cfg.Engine.PageSize > 2000 {
		return fmt.Errorf("invalid engine page size: %d", cfg.Engine.PageSize)
	}

	durations := map[string]string{
		"cli.retry_delay":         cfg.CLI.RetryDelay,
		"engine.poll_interval":    cfg.Engine.PollInterval,
		"engine.session_duration": cfg.Engine.SessionDuration,
		"engine.trace_duration":   cfg.Engine.TraceDuration,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s %q: must not be negative", key, value)
		}
	}

	if cfg.Report.Threshold < 0 || cfg.Report.Threshold > 100 {
		return fmt.Errorf("invalid report threshold: %d (must be 0-100)", cfg.Report.Threshold)
	}
	cfg.Report.Namespace = NormalizeNamespace(cfg.Report.Namespace)

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %q", cfg.Logging.Format)
	}

	return nil
}

// NormalizeNamespace maps "default" in any case, or an empty value, to the
// default namespace sentinel.
func NormalizeNamespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" || strings.EqualFold(ns, "default") {
		return DefaultNamespace
	}
	return ns
}

// LogDir returns the log directory resolved against the workspace.
func (c *Config) LogDir() string {
	if filepath.IsAbs(c.Engine.LogDir) {
		return c.Engine.LogDir
	}
	return filepath.Join(c.Workspace, c.Engine.LogDir)
}

// ReportOutput returns the report output path resolved against the
// workspace, or "" when reports are not written to disk.
func (c *Config) ReportOutput() string {
	if c.Report.Output == "" || filepath.IsAbs(c.Report.Output) {
		return c.Report.Output
	}
	return filepath.Join(c.Workspace, c.Report.Output)
}
