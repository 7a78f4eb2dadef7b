package engine

import "github.com/rs/zerolog"

// Notifier delivers operator notifications.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that logs through logger.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Info(msg string) {
	n.logger.Info().Msg(msg)
}

func (n *LogNotifier) Error(msg string) {
	n.logger.Error().Msg(msg)
}
