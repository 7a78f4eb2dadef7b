package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/goodtune/limitsmate/internal/control"
	"github.com/goodtune/limitsmate/internal/engine"
	"github.com/goodtune/limitsmate/internal/report"
)

var (
	reportFormat string
	reportOut    string
	notesAfter   int64
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a capture session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		resp, err := client.Start(cmd.Context())
		if err != nil {
			return err
		}
		printInfo(cmd.OutOrStdout(), resp.Message)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the capture session and remove the trace flag",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		resp, err := client.Stop(cmd.Context())
		if err != nil {
			return err
		}
		printInfo(cmd.OutOrStdout(), resp.Message)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetch new logs and show governor limit consumption",
	Long: `Fetch every log since the last fetch, then report the governor limits
consumed at or above the configured threshold. HTML reports are also kept by
the daemon at /report.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := report.ForFormat(reportFormat); err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		doc, err := client.Report(cmd.Context(), report.Format(reportFormat))
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), doc, reportOut)
	},
}

var deleteLogsCmd = &cobra.Command{
	Use:   "delete-logs",
	Short: "Delete downloaded log files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		resp, err := client.DeleteLogs(cmd.Context())
		if err != nil {
			return err
		}
		printInfo(cmd.OutOrStdout(), resp.Message)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the capture session state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		status, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notes"},
	Short:   "List recent daemon notifications",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		notes, err := client.Notifications(cmd.Context(), notesAfter)
		if err != nil {
			return err
		}
		printNotifications(cmd.OutOrStdout(), notes)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", string(report.FormatText), "Report format: html, markdown or text")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Write the report to a file instead of stdout")
	notificationsCmd.Flags().Int64Var(&notesAfter, "after", 0, "Only show notifications with a larger id")

	rootCmd.AddCommand(startCmd, stopCmd, reportCmd, deleteLogsCmd, statusCmd, notificationsCmd)
}

// writeReport writes doc to path, or to w when path is empty.
func writeReport(w io.Writer, doc *report.Document, path string) error {
	if path == "" {
		_, err := w.Write(doc.Body)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, doc.Body, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	printInfo(w, fmt.Sprintf("Report written to %s", path))
	return nil
}

func printInfo(w io.Writer, msg string) {
	_, _ = color.New(color.FgGreen).Fprintln(w, msg)
}

func printStatus(w io.Writer, st *engine.Status) {
	label := color.New(color.Bold)
	state := color.New(color.FgYellow)
	if st.State == engine.StateRunning {
		state = color.New(color.FgGreen, color.Bold)
	}

	_, _ = label.Fprint(w, "State:    ")
	_, _ = state.Fprintln(w, st.State)
	_, _ = label.Fprint(w, "Log dir:  ")
	fmt.Fprintln(w, st.LogDir)

	s := st.Session
	if s == nil {
		return
	}
	_, _ = label.Fprint(w, "Session:  ")
	fmt.Fprintln(w, s.ID)
	_, _ = label.Fprint(w, "User:     ")
	fmt.Fprintf(w, "%s (%s)\n", s.UserName, s.UserID)
	_, _ = label.Fprint(w, "Started:  ")
	fmt.Fprintln(w, s.InitTimestamp.Local().Format(time.RFC1123))
	if !s.LastFetchedLogTimestamp.IsZero() {
		_, _ = label.Fprint(w, "Fetched:  ")
		fmt.Fprintln(w, s.LastFetchedLogTimestamp.Local().Format(time.RFC1123))
	}
	_, _ = label.Fprint(w, "Logs:     ")
	if s.LogsSeen {
		fmt.Fprintln(w, "seen")
	} else {
		fmt.Fprintln(w, "none yet")
	}
}

func printNotifications(w io.Writer, notes []control.Notification) {
	if len(notes) == 0 {
		_, _ = color.New(color.Faint).Fprintln(w, "No notifications")
		return
	}
	red := color.New(color.FgRed)
	dim := color.New(color.Faint)
	for _, n := range notes {
		_, _ = dim.Fprintf(w, "#%d %s ", n.ID, n.Time.Local().Format(time.TimeOnly))
		if n.Level == control.LevelError {
			_, _ = red.Fprintln(w, n.Message)
		} else {
			fmt.Fprintln(w, n.Message)
		}
	}
}
