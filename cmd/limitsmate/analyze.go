package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goodtune/limitsmate/internal/config"
	"github.com/goodtune/limitsmate/internal/engine"
	"github.com/goodtune/limitsmate/internal/report"
)

var (
	analyzeThreshold int
	analyzeNamespace string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [DIR]",
	Short: "Report on debug logs already on disk",
	Long: `Parse every log file in DIR (the configured log directory by default) and
report governor limit consumption. No daemon, session or sf CLI is needed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&reportFormat, "format", "f", string(report.FormatText), "Report format: html, markdown or text")
	analyzeCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Write the report to a file instead of stdout")
	analyzeCmd.Flags().IntVarP(&analyzeThreshold, "threshold", "t", -1, "Minimum percentage to report (defaults to report.threshold)")
	analyzeCmd.Flags().StringVarP(&analyzeNamespace, "namespace", "n", "", "Namespace to report on (defaults to report.namespace)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging, cmd.ErrOrStderr())

	dir := cfg.LogDir()
	if len(args) == 1 {
		dir = args[0]
	}

	settings := engine.StaticSettings{
		ThresholdPercent: cfg.Report.Threshold,
		NamespaceName:    cfg.Report.Namespace,
	}
	if cmd.Flags().Changed("threshold") {
		if analyzeThreshold < 0 || analyzeThreshold > 100 {
			return fmt.Errorf("invalid threshold: %d (must be 0-100)", analyzeThreshold)
		}
		settings.ThresholdPercent = analyzeThreshold
	}
	if analyzeNamespace != "" {
		settings.NamespaceName = config.NormalizeNamespace(analyzeNamespace)
	}

	p, err := report.ForFormat(reportFormat)
	if err != nil {
		return err
	}

	doc, err := engine.Analyze(dir, settings, p, logger)
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), doc, reportOut)
}
