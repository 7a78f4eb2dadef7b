package control

import (
	"github.com/goodtune/limitsmate/internal/engine"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// ActionResponse is returned by start and stop.
type ActionResponse struct {
	Message string        `json:"message"`
	Status  engine.Status `json:"status"`
}

// DeleteLogsResponse is returned by log deletion.
type DeleteLogsResponse struct {
	Message string `json:"message"`
	Deleted int    `json:"deleted"`
}

// NotificationsResponse lists notifications.
type NotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
}

// Report responses carry the rendered document as the body; these headers
// describe it.
const (
	HeaderReportView   = "X-Limitsmate-View"
	HeaderReportFormat = "X-Limitsmate-Format"
)
