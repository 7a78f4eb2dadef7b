package engine

import (
	"errors"
	"strings"

	"github.com/goodtune/limitsmate/internal/sfcli"
)

// Command identifies an operator command for notification wording.
type Command string

const (
	CommandStart      Command = "start"
	CommandStop       Command = "stop"
	CommandReport     Command = "report"
	CommandDeleteLogs Command = "delete-logs"
)

// Informational notifications.
const (
	MsgEngineStarted   = "INFORMATION: Limits Mate engines have been started."
	MsgEngineShutDown  = "INFORMATION: Limits Mate engines have been turned off."
	MsgSessionTimedOut = "INFORMATION: The Limits Mate session has timed out and the engines have been turned off. Run start to begin a new session."
	MsgNoLogFiles      = "INFORMATION: There are no log files to delete."
	MsgLogFilesDeleted = "INFORMATION: The captured log files have been deleted."
)

// Error notifications.
const (
	MsgAlreadyRunning     = "ERROR: The Limits Mate engines are already running."
	MsgStopBeforeStart    = "ERROR: Stop cannot run before Start."
	MsgReportBeforeStart  = "ERROR: Report cannot run before Start."
	MsgAlreadyStopped     = "ERROR: The Limits Mate engines have already been turned off."
	MsgStopInProgress     = "ERROR: The Limits Mate engines are already being turned off."
	MsgToolNotInstalled   = "ERROR: Salesforce CLI not installed. Install Salesforce CLI 1.77.1 or above and verify it with: sf --version"
	MsgToolVersionTooLow  = "ERROR: Salesforce CLI 1.77.1 or above is required. Update it with: sf update"
	MsgErrorOnStart       = "ERROR: An error occurred while starting the Limits Mate engines."
	MsgErrorOnStop        = "ERROR: An error occurred while turning off the Limits Mate engines."
	MsgErrorOnReport      = "ERROR: An error occurred while generating the governor limits report."
	MsgErrorOnDeleteLogs  = "ERROR: An error occurred while deleting the logs. Check that the log directory exists and is writable."
	MsgInvalidSession     = "The org session has expired or is missing. Authorize your Salesforce org and try again."
	MsgUserLookupFailed   = "Make sure you are connected to the org and can view the user record."
	MsgTraceSetupFailed   = "Debug logs could not be enabled. Make sure the org has enough storage for debug logs."
	MsgToolCommandFailed  = "A Salesforce CLI command failed."
	msgUnknownCommandFail = "ERROR: An error occurred."
)

var commandFailure = map[Command]string{
	CommandStart:      MsgErrorOnStart,
	CommandStop:       MsgErrorOnStop,
	CommandReport:     MsgErrorOnReport,
	CommandDeleteLogs: MsgErrorOnDeleteLogs,
}

// UserMessage maps an error returned by cmd to the single notification shown
// to the operator.
func UserMessage(cmd Command, err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyRunning):
		return MsgAlreadyRunning
	case errors.Is(err, ErrNotRunning):
		return MsgStopBeforeStart
	case errors.Is(err, ErrAlreadyStopped):
		return MsgAlreadyStopped
	case errors.Is(err, ErrNotStarted):
		return MsgReportBeforeStart
	case errors.Is(err, ErrBusy):
		return MsgStopInProgress
	case errors.Is(err, sfcli.ErrToolNotInstalled):
		return MsgToolNotInstalled
	case errors.Is(err, sfcli.ErrToolVersionTooLow):
		return MsgToolVersionTooLow
	}

	prefix, ok := commandFailure[cmd]
	if !ok {
		prefix = msgUnknownCommandFail
	}

	if errors.Is(err, sfcli.ErrInvalidSession) {
		return prefix + " " + MsgInvalidSession
	}

	var toolErr *sfcli.ExternalToolError
	if errors.As(err, &toolErr) {
		hint := MsgToolCommandFailed
		switch toolErr.Op {
		case sfcli.OpVersion:
			return MsgToolVersionTooLow
		case sfcli.OpGetUser:
			hint = MsgUserLookupFailed
		case sfcli.OpQueryDebugLevel, sfcli.OpCreateDebugLevel,
			sfcli.OpQueryTraceFlag, sfcli.OpCreateTraceFlag, sfcli.OpUpdateTraceFlag:
			hint = MsgTraceSetupFailed
		}
		return prefix + " " + hint + " (" + firstLine(err.Error()) + ")"
	}

	return prefix + " " + firstLine(err.Error())
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
