package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/goodtune/limitsmate/internal/engine"
	"github.com/goodtune/limitsmate/internal/limits"
	"github.com/goodtune/limitsmate/internal/report"
	"github.com/goodtune/limitsmate/internal/sfcli"
)

type fakeEngine struct {
	startErr  error
	stopErr   error
	reportErr error
	deleted   int
	deleteErr error
	state     engine.State
	formats   []report.Format
}

func (f *fakeEngine) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.state = engine.StateRunning
	return nil
}

func (f *fakeEngine) Stop(ctx context.Context) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.state = engine.StateStopped
	return nil
}

func (f *fakeEngine) ShowReportWith(ctx context.Context, p report.Presenter) (*report.Document, error) {
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	r := limits.NewReport()
	r.Add("a.log", []limits.Entry{{Description: "SOQL Queries", Consumed: 90, Max: 100, Percentage: 90, Integral: true}})
	doc, err := p.Render(report.View{Kind: report.ViewConsumption, Report: r, Threshold: 50, Namespace: limits.DefaultNamespace})
	if err != nil {
		return nil, err
	}
	f.formats = append(f.formats, doc.Format)
	return doc, nil
}

func (f *fakeEngine) DeleteLogs(ctx context.Context) (int, error) {
	return f.deleted, f.deleteErr
}

func (f *fakeEngine) Status() engine.Status {
	return engine.Status{State: f.state, LogDir: "logs"}
}

func newTestServer(t *testing.T, eng *fakeEngine, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(cfg, eng, NewFeed(10, zerolog.Nop()), zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestServer_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		eng        *fakeEngine
		method     string
		path       string
		wantStatus int
		wantMsg    string
	}{
		{"start ok", &fakeEngine{}, "POST", "/api/engine/start", http.StatusOK, engine.MsgEngineStarted},
		{"start twice", &fakeEngine{startErr: engine.ErrAlreadyRunning}, "POST", "/api/engine/start", http.StatusConflict, engine.MsgAlreadyRunning},
		{"start without sf", &fakeEngine{startErr: sfcli.ErrToolNotInstalled}, "POST", "/api/engine/start", http.StatusPreconditionFailed, engine.MsgToolNotInstalled},
		{"start expired org", &fakeEngine{startErr: sfcli.ErrInvalidSession}, "POST", "/api/engine/start", http.StatusUnauthorized, engine.MsgErrorOnStart + " " + engine.MsgInvalidSession},
		{"stop before start", &fakeEngine{stopErr: engine.ErrNotRunning}, "POST", "/api/engine/stop", http.StatusConflict, engine.MsgStopBeforeStart},
		{"stop remote failure", &fakeEngine{stopErr: &sfcli.ExternalToolError{Op: sfcli.OpDeleteTraceFlag, Err: errors.New("boom")}}, "POST", "/api/engine/stop", http.StatusBadGateway, ""},
		{"report before start", &fakeEngine{reportErr: engine.ErrNotStarted}, "POST", "/api/report", http.StatusConflict, engine.MsgReportBeforeStart},
		{"report bad format", &fakeEngine{}, "POST", "/api/report?format=pdf", http.StatusBadRequest, ""},
		{"delete nothing", &fakeEngine{}, "DELETE", "/api/logs", http.StatusOK, engine.MsgNoLogFiles},
		{"delete some", &fakeEngine{deleted: 3}, "DELETE", "/api/logs", http.StatusOK, engine.MsgLogFilesDeleted},
		{"delete failure", &fakeEngine{deleteErr: &engine.FileSystemError{Op: "delete", Path: "logs", Err: os.ErrPermission}}, "DELETE", "/api/logs", http.StatusInternalServerError, ""},
		{"no report yet", &fakeEngine{}, "GET", "/report", http.StatusNotFound, ""},
		{"wrong method", &fakeEngine{}, "GET", "/api/engine/start", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, tt.eng, Config{})

			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if tt.wantMsg == "" {
				return
			}

			var body struct {
				Message string `json:"message"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if body.Message != tt.wantMsg {
				t.Errorf("Expected message %q, got %q", tt.wantMsg, body.Message)
			}
		})
	}
}

func TestServer_ReportFormatsAndLastReport(t *testing.T) {
	eng := &fakeEngine{}
	out := filepath.Join(t.TempDir(), "out", "report.html")
	_, ts := newTestServer(t, eng, Config{ReportOutput: out})
	client := NewClient(ts.URL)
	ctx := context.Background()

	doc, err := client.Report(ctx, report.FormatMarkdown)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if doc.Format != report.FormatMarkdown || doc.Kind != report.ViewConsumption {
		t.Errorf("Expected markdown consumption report, got %s %s", doc.Format, doc.Kind)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("Expected markdown report not to be saved")
	}

	if _, err := client.Report(ctx, report.FormatHTML); err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	saved, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Expected HTML report to be saved: %v", err)
	}
	if !strings.Contains(string(saved), "SOQL Queries") {
		t.Error("Expected saved report to contain the SOQL entry")
	}

	resp, err := http.Get(ts.URL + "/report")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected last report, got status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected HTML content type, got %s", ct)
	}
}

func TestClient(t *testing.T) {
	eng := &fakeEngine{}
	s, ts := newTestServer(t, eng, Config{})
	client := NewClient(strings.TrimPrefix(ts.URL, "http://"))
	ctx := context.Background()

	started, err := client.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if started.Status.State != engine.StateRunning {
		t.Errorf("Expected running, got %s", started.Status.State)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != engine.StateRunning || status.LogDir != "logs" {
		t.Errorf("Expected running status with log dir, got %+v", status)
	}

	eng.stopErr = engine.ErrBusy
	_, err = client.Stop(ctx)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.Code != http.StatusConflict || apiErr.Message != engine.MsgStopInProgress {
		t.Errorf("Expected 409 %q, got %d %q", engine.MsgStopInProgress, apiErr.Code, apiErr.Message)
	}

	s.feed.Info("first")
	s.feed.Error("second")
	notes, err := client.Notifications(ctx, 1)
	if err != nil {
		t.Fatalf("Notifications failed: %v", err)
	}
	if len(notes) != 1 || notes[0].Message != "second" || notes[0].Level != LevelError {
		t.Errorf("Expected only the second notification, got %+v", notes)
	}

	deleted, err := client.DeleteLogs(ctx)
	if err != nil {
		t.Fatalf("DeleteLogs failed: %v", err)
	}
	if deleted.Deleted != 0 || deleted.Message != engine.MsgNoLogFiles {
		t.Errorf("Expected nothing deleted, got %+v", deleted)
	}
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	_, err := NewClient(addr).Status(context.Background())
	if err == nil || !strings.Contains(err.Error(), "limitsmate serve") {
		t.Errorf("Expected daemon hint in error, got %v", err)
	}
}

func TestFeed(t *testing.T) {
	feed := NewFeed(3, zerolog.Nop())
	for _, msg := range []string{"a", "b", "c", "d"} {
		feed.Info(msg)
	}

	all := feed.Since(0)
	if len(all) != 3 {
		t.Fatalf("Expected 3 retained notifications, got %d", len(all))
	}
	if all[0].Message != "b" || all[0].ID != 2 {
		t.Errorf("Expected oldest retained to be b (id 2), got %+v", all[0])
	}

	last, ok := feed.Last()
	if !ok || last.Message != "d" {
		t.Errorf("Expected last notification d, got %+v", last)
	}

	if got := feed.Since(4); len(got) != 0 {
		t.Errorf("Expected no notifications after id 4, got %+v", got)
	}
}
