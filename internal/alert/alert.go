// Package alert defines the drawdown/health alert sink the periodic
// snapshot task consults. Real delivery (email, chat, paging) is out of
// scope for this module; a logging default is provided as the extension
// point concrete implementations would hook into.
package alert

import "log/slog"

// Sink receives threshold-crossing notifications.
type Sink interface {
	Notify(level, message string)
}

// LogSink logs alerts via slog; it is the default Sink when no external
// delivery integration is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink wraps logger as a Sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "alert")}
}

// Notify logs the alert at warning level for "warning"/"critical", info
// otherwise.
func (s *LogSink) Notify(level, message string) {
	switch level {
	case "critical", "warning":
		s.logger.Warn("alert", "level", level, "message", message)
	default:
		s.logger.Info("alert", "level", level, "message", message)
	}
}
