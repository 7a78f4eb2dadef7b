package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/goodtune/limitsmate/internal/config"
	"github.com/goodtune/limitsmate/internal/sfcli"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the sf CLI can run a capture session",
	Long: `Check that the sf CLI is installed, meets the minimum version and has a
logged-in org user. Nothing is changed in the org.`,
	Example: `  limitsmate check
  limitsmate -c limitsmate.yaml check`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// A single attempt per command; check is interactive.
	gateway := sfcli.New(sfcli.Config{Binary: cfg.CLI.Binary},
		sfcli.ExecRunner{Dir: cfg.Workspace}, zerolog.Nop())

	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	if err := gateway.ValidateToolPresent(ctx); err != nil {
		printCheck(out, false, "sf CLI installed", err)
		return err
	}
	printCheck(out, true, "sf CLI installed", nil)

	if err := gateway.ValidateMinimumVersion(ctx, cfg.CLI.MinVersion); err != nil {
		printCheck(out, false, fmt.Sprintf("sf CLI version >= %s", cfg.CLI.MinVersion), err)
		return err
	}
	printCheck(out, true, fmt.Sprintf("sf CLI version >= %s", cfg.CLI.MinVersion), nil)

	user, err := gateway.GetLoggedInUser(ctx)
	if err != nil {
		printCheck(out, false, "org user logged in", err)
		return err
	}
	printCheck(out, true, fmt.Sprintf("org user logged in: %s (%s)", user.UserName, user.UserID), nil)

	return nil
}

func printCheck(w io.Writer, ok bool, what string, err error) {
	if ok {
		_, _ = color.New(color.FgGreen).Fprintf(w, "✅ %s\n", what)
		return
	}
	_, _ = color.New(color.FgRed, color.Bold).Fprintf(w, "❌ %s: %v\n", what, err)
}
