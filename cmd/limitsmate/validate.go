package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goodtune/limitsmate/internal/config"
)

var (
	validateDump bool
	validateYAML bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the limitsmate configuration file for syntax and semantic errors.`,
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	validateCmd.Flags().BoolVar(&validateYAML, "yaml", false, "Print the effective configuration as YAML")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "❌ Configuration validation failed: %v\n", err)
		return err
	}

	if validateYAML {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}
		return enc.Close()
	}

	// Unknown keys are checked even without --dump
	unknownKeys, err := config.UnknownKeys(configPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(out, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(out)
		_, _ = red.Fprintf(out, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(out, "   - %s\n", key)
		}
		fmt.Fprintln(out, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		_, _ = fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(out, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(out, strings.Repeat("=", 80))

		dumpConfig(out, cfg, config.Defaults(), unknownKeys)
	}

	return nil
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(w io.Writer, cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	dumpField(w, "workspace", cfg.Workspace, defaultCfg.Workspace, yellow, green)

	_, _ = cyan.Fprintln(w, "\nserver:")
	dumpField(w, "  control_addr", cfg.Server.ControlAddr, defaultCfg.Server.ControlAddr, yellow, green)
	dumpField(w, "  metrics_addr", cfg.Server.MetricsAddr, defaultCfg.Server.MetricsAddr, yellow, green)
	dumpField(w, "  metrics_enabled", cfg.Server.MetricsEnabled, defaultCfg.Server.MetricsEnabled, yellow, green)

	_, _ = cyan.Fprintln(w, "\ncli:")
	dumpField(w, "  binary", cfg.CLI.Binary, defaultCfg.CLI.Binary, yellow, green)
	dumpField(w, "  min_version", cfg.CLI.MinVersion, defaultCfg.CLI.MinVersion, yellow, green)
	dumpField(w, "  retries", cfg.CLI.Retries, defaultCfg.CLI.Retries, yellow, green)
	dumpField(w, "  retry_delay", cfg.CLI.RetryDelay, defaultCfg.CLI.RetryDelay, yellow, green)

	_, _ = cyan.Fprintln(w, "\nengine:")
	dumpField(w, "  log_dir", cfg.Engine.LogDir, defaultCfg.Engine.LogDir, yellow, green)
	dumpField(w, "  poll_interval", cfg.Engine.PollInterval, defaultCfg.Engine.PollInterval, yellow, green)
	dumpField(w, "  page_size", cfg.Engine.PageSize, defaultCfg.Engine.PageSize, yellow, green)
	dumpField(w, "  session_duration", cfg.Engine.SessionDuration, defaultCfg.Engine.SessionDuration, yellow, green)
	dumpField(w, "  trace_duration", cfg.Engine.TraceDuration, defaultCfg.Engine.TraceDuration, yellow, green)

	_, _ = cyan.Fprintln(w, "\nreport:")
	dumpField(w, "  threshold", cfg.Report.Threshold, defaultCfg.Report.Threshold, yellow, green)
	dumpField(w, "  namespace", cfg.Report.Namespace, defaultCfg.Report.Namespace, yellow, green)
	dumpField(w, "  output", cfg.Report.Output, defaultCfg.Report.Output, yellow, green)
	dumpField(w, "  cache_size", cfg.Report.CacheSize, defaultCfg.Report.CacheSize, yellow, green)

	_, _ = cyan.Fprintln(w, "\nlogging:")
	dumpField(w, "  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField(w, "  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		_, _ = cyan.Fprintln(w, "\n# UNKNOWN KEYS - These will be ignored!")
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(w, "# %s: (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(w io.Writer, name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := yamlScalar(value)

	if isDefault {
		_, _ = defaultColor.Fprintf(w, "%s: %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Fprintf(w, "%s: %s  # default: %s\n", name, valueStr, yamlScalar(defaultValue))
	}
}

// yamlScalar renders v as a YAML flow value so the dump stays valid YAML.
func yamlScalar(v interface{}) string {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(string(b))
}
