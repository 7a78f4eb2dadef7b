package systemd

import "strings"

// Notifier receives user-facing engine notifications.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// StatusNotifier forwards notifications and publishes each one as the unit
// STATUS, so systemctl status shows the latest engine event.
type StatusNotifier struct {
	next   Notifier
	status func(string) error
}

// NewStatusNotifier wraps next.
func NewStatusNotifier(next Notifier) *StatusNotifier {
	return &StatusNotifier{next: next, status: NotifyStatus}
}

func (n *StatusNotifier) Info(msg string) {
	n.next.Info(msg)
	_ = n.status(statusLine(msg))
}

func (n *StatusNotifier) Error(msg string) {
	n.next.Error(msg)
	_ = n.status(statusLine(msg))
}

// statusLine keeps the first line; STATUS is a single line.
func statusLine(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
