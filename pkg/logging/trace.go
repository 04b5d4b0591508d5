package logging

import (
	"context"
	"log/slog"
)

// LevelTrace sits below DEBUG. It is enabled by setting a log level of TRACE.
const LevelTrace = slog.LevelDebug - 4

// Trace logs a message at LevelTrace. Handlers below TRACE skip it cheaply.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// replaceLevelName prints LevelTrace as "TRACE" instead of "DEBUG-4".
func replaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
