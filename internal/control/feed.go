package control

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFeedSize is the number of notifications kept for clients.
const DefaultFeedSize = 100

// Level classifies a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is one operator-facing message.
type Notification struct {
	ID      int64     `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Feed records engine notifications for the control API and logs them.
// It implements engine.Notifier.
type Feed struct {
	mu     sync.Mutex
	items  []Notification
	size   int
	nextID int64
	now    func() time.Time
	logger zerolog.Logger
}

// NewFeed creates a feed keeping the last size notifications.
func NewFeed(size int, logger zerolog.Logger) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{
		size:   size,
		nextID: 1,
		now:    time.Now,
		logger: logger.With().Str("component", "notifications").Logger(),
	}
}

// Info records an informational notification.
func (f *Feed) Info(msg string) {
	f.logger.Info().Msg(msg)
	f.add(LevelInfo, msg)
}

// Error records an error notification.
func (f *Feed) Error(msg string) {
	f.logger.Error().Msg(msg)
	f.add(LevelError, msg)
}

func (f *Feed) add(level Level, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append(f.items, Notification{
		ID:      f.nextID,
		Level:   level,
		Message: msg,
		Time:    f.now(),
	})
	f.nextID++
	if len(f.items) > f.size {
		f.items = append([]Notification(nil), f.items[len(f.items)-f.size:]...)
	}
}

// Since returns the retained notifications with an ID greater than after,
// oldest first.
func (f *Feed) Since(after int64) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []Notification{}
	for _, n := range f.items {
		if n.ID > after {
			out = append(out, n)
		}
	}
	return out
}

// Last returns the newest notification.
func (f *Feed) Last() (Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.items) == 0 {
		return Notification{}, false
	}
	return f.items[len(f.items)-1], true
}
