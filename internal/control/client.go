package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goodtune/limitsmate/internal/engine"
	"github.com/goodtune/limitsmate/internal/report"
)

// APIError is a non-2xx control API response.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("control API: %s", http.StatusText(e.Code))
	}
	return e.Message
}

// Client calls a running limitsmate daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the daemon at addr (host:port or URL).
func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	// No client timeout: engine commands end when the sf CLI does.
	return &Client{baseURL: base, http: &http.Client{}}
}

// Start starts the engine.
func (c *Client) Start(ctx context.Context) (*ActionResponse, error) {
	var out ActionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/engine/start", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stop stops the engine.
func (c *Client) Stop(ctx context.Context) (*ActionResponse, error) {
	var out ActionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/engine/stop", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Report generates a report in format.
func (c *Client) Report(ctx context.Context, format report.Format) (*report.Document, error) {
	path := "/api/report?format=" + url.QueryEscape(string(format))
	resp, err := c.do(ctx, http.MethodPost, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}

	return &report.Document{
		Kind:        report.ViewKind(resp.Header.Get(HeaderReportView)),
		Format:      report.Format(resp.Header.Get(HeaderReportFormat)),
		ContentType: resp.Header.Get("Content-Type"),
		Title:       report.Title,
		Body:        body,
	}, nil
}

// DeleteLogs removes the downloaded logs.
func (c *Client) DeleteLogs(ctx context.Context) (*DeleteLogsResponse, error) {
	var out DeleteLogsResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/api/logs", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns the engine status.
func (c *Client) Status(ctx context.Context) (*engine.Status, error) {
	var out engine.Status
	if err := c.doJSON(ctx, http.MethodGet, "/api/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Notifications returns notifications newer than after.
func (c *Client) Notifications(ctx context.Context, after int64) ([]Notification, error) {
	var out NotificationsResponse
	path := "/api/notifications?after=" + strconv.FormatInt(after, 10)
	if err := c.doJSON(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, out interface{}) error {
	resp, err := c.do(ctx, method, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// do sends a request and converts error responses to *APIError.
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot reach limitsmate daemon at %s (is `limitsmate serve` running?): %w", c.baseURL, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{Code: resp.StatusCode}
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Message = body.Message
	}
	return nil, apiErr
}
