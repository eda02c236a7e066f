package notify

import (
	"github.com/rs/zerolog"
)

// Level is the severity a notification is displayed with.
type Level string

const (
	Info    Level = "info"
	Success Level = "success"
	Warning Level = "warning"
	Error   Level = "error"
)

// Notifier is the user-facing status surface.
type Notifier interface {
	// Notify shows a human-readable message.
	Notify(level Level, message string)
	// Renewing toggles the transient "renewing session" indicator.
	Renewing(active bool)
}

// LogNotifier renders notifications as structured log lines, which is what a
// terminal client shows the user.
type LogNotifier struct {
	logger zerolog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(level Level, message string) {
	var event *zerolog.Event
	switch level {
	case Error:
		event = n.logger.Error()
	case Warning:
		event = n.logger.Warn()
	default:
		event = n.logger.Info()
	}
	event.Str("level_hint", string(level)).Msg(message)
}

func (n *LogNotifier) Renewing(active bool) {
	if active {
		n.logger.Debug().Msg("Renewing session...")
		return
	}
	n.logger.Debug().Msg("Session renewal finished")
}
