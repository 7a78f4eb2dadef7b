package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goodtune/limitsmate/internal/config"
	"github.com/goodtune/limitsmate/internal/control"
)

var (
	version     = "dev"
	configPath  string
	controlAddr string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "limitsmate",
	Short: "limitsmate - Salesforce governor limit consumption from Apex debug logs",
	Long: `limitsmate turns on debug logging for the Salesforce org user, downloads new
Apex debug logs while a capture session runs and reports which governor
limits were consumed at or above a configurable percentage.

Run "limitsmate serve" in the project workspace, then drive the session with
"limitsmate start", "limitsmate report" and "limitsmate stop".`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&controlAddr, "addr", "", "Control address of the daemon (defaults to server.control_addr)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newClient builds a control client for the daemon named by --addr or the
// configuration file.
func newClient() (*control.Client, error) {
	if controlAddr != "" {
		return control.NewClient(controlAddr), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return control.NewClient(cfg.Server.ControlAddr), nil
}
