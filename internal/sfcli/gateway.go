// Package sfcli drives the Salesforce sf CLI for trace flag management and
// debug log retrieval.
package sfcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/goodtune/limitsmate/internal/metrics"
	"github.com/goodtune/limitsmate/internal/retry"
	"github.com/rs/zerolog"
)

const (
	// DefaultBinary is the sf CLI executable name.
	DefaultBinary = "sf"

	// DefaultRetries is the number of retries after a failed command.
	DefaultRetries = 3

	// DebugLevelPrefix names the debug level records created by limitsmate.
	DebugLevelPrefix = "MyReplayDebuggerLM"

	// SOQLTimeLayout formats datetime literals the way the API returns them.
	SOQLTimeLayout = "2006-01-02T15:04:05.000-0700"

	unknownUserID = "unknown"
)

// Operation names used in errors, logs and metrics.
const (
	OpVersion          = "version"
	OpGetUser          = "get-user"
	OpQueryDebugLevel  = "query-debug-level"
	OpCreateDebugLevel = "create-debug-level"
	OpQueryTraceFlag   = "query-trace-flag"
	OpCreateTraceFlag  = "create-trace-flag"
	OpUpdateTraceFlag  = "update-trace-flag"
	OpDeleteTraceFlag  = "delete-trace-flag"
	OpQueryLogs        = "query-logs"
	OpFetchLog         = "fetch-log"
)

var recordIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]{15,18}$`)

// Config holds gateway configuration.
type Config struct {
	Binary     string
	Retries    uint64
	RetryDelay time.Duration
}

// User identifies the org user being traced.
type User struct {
	UserID   string
	UserName string
}

// LogRecord is one ApexLog row.
type LogRecord struct {
	ID           string
	LastModified time.Time
}

// Gateway executes sf CLI operations. Every remote call is retried according
// to the configured policy.
type Gateway struct {
	binary   string
	runner   Runner
	policy   retry.Policy
	lookPath func(string) (string, error)
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates a gateway that runs commands through runner.
func New(cfg Config, runner Runner, logger zerolog.Logger) *Gateway {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}

	return &Gateway{
		binary: cfg.Binary,
		runner: runner,
		policy: retry.Policy{
			MaxRetries: cfg.Retries,
			Delay:      cfg.RetryDelay,
		},
		lookPath: exec.LookPath,
		now:      time.Now,
		logger:   logger.With().Str("component", "sfcli").Logger(),
	}
}

// ValidateToolPresent checks that the sf binary is on PATH.
func (g *Gateway) ValidateToolPresent(ctx context.Context) error {
	path, err := g.lookPath(g.binary)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrToolNotInstalled, g.binary, err)
	}
	g.logger.Debug().Str("path", path).Msg("Located sf CLI")
	return nil
}

// ValidateMinimumVersion checks that the installed CLI is at least minVersion.
func (g *Gateway) ValidateMinimumVersion(ctx context.Context, minVersion string) error {
	out, err := g.run(ctx, OpVersion, "--version")
	if err != nil {
		return err
	}

	version, ok := ParseCLIVersion(string(out))
	if !ok {
		return fmt.Errorf("%w: unable to determine version from %q", ErrToolVersionTooLow, strings.TrimSpace(string(out)))
	}
	if CompareVersions(version, minVersion) < 0 {
		return fmt.Errorf("%w: found %s, need %s", ErrToolVersionTooLow, version, minVersion)
	}

	g.logger.Debug().Str("version", version).Str("min_version", minVersion).Msg("sf CLI version accepted")
	return nil
}

// GetLoggedInUser returns the user of the default org.
func (g *Gateway) GetLoggedInUser(ctx context.Context) (User, error) {
	out, err := g.run(ctx, OpGetUser, "org", "display", "user", "--json")
	if err != nil {
		return User{}, err
	}

	res, err := decode[userResult](OpGetUser, out)
	if err != nil {
		return User{}, err
	}

	id := strings.TrimSpace(res.ID)
	if id == "" || id == unknownUserID {
		return User{}, ErrInvalidSession
	}
	return User{UserID: id, UserName: res.Username}, nil
}

// GetOrCreateDebugLevel returns the id of a limitsmate debug level, creating
// one when the org has none.
func (g *Gateway) GetOrCreateDebugLevel(ctx context.Context) (string, error) {
	query := fmt.Sprintf(
		"SELECT Id, DeveloperName FROM DebugLevel WHERE DeveloperName LIKE '%s%%' AND Visualforce = 'FINER' AND ApexCode = 'FINEST' LIMIT 1",
		DebugLevelPrefix,
	)
	existing, err := g.query(ctx, OpQueryDebugLevel, query)
	if err != nil {
		return "", err
	}
	if existing.TotalSize > 0 && len(existing.Records) > 0 {
		return existing.Records[0].ID, nil
	}

	name := fmt.Sprintf("%sLevels%d", DebugLevelPrefix, g.now().UnixMilli())
	values := fmt.Sprintf("DeveloperName=%s MasterLabel=%s ApexCode=FINEST Visualforce=FINER", name, name)
	out, err := g.run(ctx, OpCreateDebugLevel,
		"data", "create", "record", "--sobject", "DebugLevel", "--values", values, "--use-tooling-api", "--json")
	if err != nil {
		return "", err
	}

	created, err := decode[recordResult](OpCreateDebugLevel, out)
	if err != nil {
		return "", err
	}

	g.logger.Info().Str("debug_level_id", created.ID).Str("name", name).Msg("Created debug level")
	return created.ID, nil
}

// GetOrUpsertTraceFlag creates a developer-log trace flag for the user, or
// updates the existing one with a new expiry and debug level. It returns the
// trace flag id.
func (g *Gateway) GetOrUpsertTraceFlag(ctx context.Context, userID, debugLevelID string, expiry time.Time) (string, error) {
	if err := checkID(OpQueryTraceFlag, userID); err != nil {
		return "", err
	}
	if err := checkID(OpQueryTraceFlag, debugLevelID); err != nil {
		return "", err
	}

	query := fmt.Sprintf(
		"SELECT Id, LogType, StartDate, ExpirationDate, DebugLevelId FROM TraceFlag WHERE LogType = 'DEVELOPER_LOG' AND TracedEntityId = '%s'",
		userID,
	)
	existing, err := g.query(ctx, OpQueryTraceFlag, query)
	if err != nil {
		return "", err
	}

	expires := expiry.UTC().Format(SOQLTimeLayout)

	if existing.TotalSize == 0 || len(existing.Records) == 0 {
		values := fmt.Sprintf("TracedEntityId='%s' LogType='DEVELOPER_LOG' DebugLevelId='%s' StartDate='' ExpirationDate='%s'",
			userID, debugLevelID, expires)
		out, err := g.run(ctx, OpCreateTraceFlag,
			"data", "create", "record", "--sobject", "TraceFlag", "--values", values, "--use-tooling-api", "--json")
		if err != nil {
			return "", err
		}
		created, err := decode[recordResult](OpCreateTraceFlag, out)
		if err != nil {
			return "", err
		}
		g.logger.Info().Str("trace_flag_id", created.ID).Str("expires", expires).Msg("Created trace flag")
		return created.ID, nil
	}

	id := existing.Records[0].ID
	values := fmt.Sprintf("StartDate='' ExpirationDate='%s' DebugLevelId='%s'", expires, debugLevelID)
	if _, err := g.run(ctx, OpUpdateTraceFlag,
		"data", "update", "record", "--sobject", "TraceFlag", "--record-id", id, "--values", values, "--use-tooling-api", "--json"); err != nil {
		return "", err
	}

	g.logger.Info().Str("trace_flag_id", id).Str("expires", expires).Msg("Updated trace flag")
	return id, nil
}

// DeleteTraceFlag removes the trace flag. A flag that no longer exists is not
// an error.
func (g *Gateway) DeleteTraceFlag(ctx context.Context, id string) error {
	if err := checkID(OpDeleteTraceFlag, id); err != nil {
		return err
	}

	existing, err := g.query(ctx, OpQueryTraceFlag, fmt.Sprintf("SELECT Id FROM TraceFlag WHERE Id = '%s'", id))
	if err != nil {
		return err
	}
	if existing.TotalSize == 0 {
		g.logger.Debug().Str("trace_flag_id", id).Msg("Trace flag already removed")
		return nil
	}

	if _, err := g.run(ctx, OpDeleteTraceFlag,
		"data", "delete", "record", "--sobject", "TraceFlag", "--record-id", id, "--use-tooling-api", "--json"); err != nil {
		return err
	}

	g.logger.Info().Str("trace_flag_id", id).Msg("Deleted trace flag")
	return nil
}

// QueryNewLogs lists the user's logs modified at or after cursor, oldest first.
// pageSize bounds the result unless fetchAll is set.
func (g *Gateway) QueryNewLogs(ctx context.Context, userID string, pageSize int, fetchAll bool, cursor time.Time) ([]LogRecord, error) {
	if err := checkID(OpQueryLogs, userID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT Id, LastModifiedDate FROM ApexLog WHERE LogUserId = '%s' AND LastModifiedDate >= %s ORDER BY LastModifiedDate",
		userID, cursor.UTC().Format(SOQLTimeLayout),
	)
	if !fetchAll && pageSize > 0 {
		query += fmt.Sprintf(" LIMIT %d", pageSize)
	}

	res, err := g.query(ctx, OpQueryLogs, query)
	if err != nil {
		return nil, err
	}

	logs := make([]LogRecord, 0, len(res.Records))
	for _, rec := range res.Records {
		ts, err := time.Parse(SOQLTimeLayout, rec.LastModifiedDate)
		if err != nil {
			return nil, &ExternalToolError{Op: OpQueryLogs, Err: fmt.Errorf("parse LastModifiedDate %q: %w", rec.LastModifiedDate, err)}
		}
		logs = append(logs, LogRecord{ID: rec.ID, LastModified: ts})
	}
	return logs, nil
}

// FetchLogBody downloads one log into dir as <logID>.log.
func (g *Gateway) FetchLogBody(ctx context.Context, logID, dir string) error {
	if err := checkID(OpFetchLog, logID); err != nil {
		return err
	}
	_, err := g.run(ctx, OpFetchLog, "apex", "get", "log", "--output-dir", dir, "--log-id", logID)
	return err
}

// run executes one sf invocation through the retry policy.
func (g *Gateway) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	policy := g.policy
	policy.OnRetry = func(err error, wait time.Duration) {
		metrics.CLIRetriesTotal.WithLabelValues(op).Inc()
		g.logger.Warn().
			Err(err).
			Str("operation", op).
			Dur("wait", wait).
			Msg("sf command failed, retrying")
	}

	call := retry.Wrap(func(ctx context.Context, args []string) ([]byte, error) {
		return g.runner.Run(ctx, g.binary, args...)
	}, policy)

	start := time.Now()
	out, err := call(ctx, args)
	metrics.CLICommandDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.CLICommandsTotal.WithLabelValues(op, "error").Inc()
		g.logger.Error().Err(err).Str("operation", op).Msg("sf command failed")
		return nil, &ExternalToolError{Op: op, Err: err}
	}

	metrics.CLICommandsTotal.WithLabelValues(op, "success").Inc()
	g.logger.Debug().Str("operation", op).Dur("duration", time.Since(start)).Msg("sf command completed")
	return out, nil
}

func (g *Gateway) query(ctx context.Context, op, soql string) (queryResult, error) {
	out, err := g.run(ctx, op, "data", "query", "--query", soql, "--use-tooling-api", "--json")
	if err != nil {
		return queryResult{}, err
	}
	return decode[queryResult](op, out)
}

func checkID(op, id string) error {
	if !recordIDPattern.MatchString(id) {
		return &ExternalToolError{Op: op, Err: fmt.Errorf("invalid record id %q", id)}
	}
	return nil
}

// envelope is the --json output shape shared by all sf commands.
type envelope[T any] struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

type userResult struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type recordResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

type queryResult struct {
	TotalSize int           `json:"totalSize"`
	Done      bool          `json:"done"`
	Records   []queryRecord `json:"records"`
}

type queryRecord struct {
	ID               string `json:"Id"`
	LastModifiedDate string `json:"LastModifiedDate"`
}

func decode[T any](op string, out []byte) (T, error) {
	var env envelope[T]
	if err := json.Unmarshal(out, &env); err != nil {
		var zero T
		return zero, &ExternalToolError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if env.Status != 0 {
		var zero T
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", env.Status)
		}
		return zero, &ExternalToolError{Op: op, Err: errors.New(msg)}
	}
	return env.Result, nil
}
