package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LevelTrace sits below DEBUG and is used for wire-level chatter.
const LevelTrace = slog.Level(-8)

var (
	once   sync.Once
	logger *slog.Logger
	level  = new(slog.LevelVar)
)

// Setup initializes the global logger.
// logic: default to INFO. If level is invalid, fallback to INFO.
// Output goes to stderr so stdout stays reserved for rendered call results.
func Setup(lvl, format string) {
	once.Do(func() {
		install(os.Stderr, lvl, format)
	})
}

// SetOutput rebuilds the global logger on w. Intended for tests and for the
// companion peer, which logs to its own file.
func SetOutput(w io.Writer, lvl, format string) {
	install(w, lvl, format)
}

func install(w io.Writer, lvl, format string) {
	level.Set(ParseLevel(lvl))
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(lvl)) {
	case "TRACE", "ALL", "GARBAGE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR", "CRITICAL", "QUIET":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the configured logger, or a default one if Setup hasn't been called.
func Get() *slog.Logger {
	if logger == nil {
		Setup("INFO", "json")
	}
	return logger
}

// Enabled reports whether the global logger emits records at lvl.
func Enabled(lvl slog.Level) bool {
	return Get().Enabled(context.Background(), lvl)
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithFunction returns a logger with the fun field set.
func WithFunction(name string) *slog.Logger {
	return Get().With(slog.String("fun", name))
}

// WithJob returns a logger with the jid field set.
func WithJob(id string) *slog.Logger {
	return Get().With(slog.String("jid", id))
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}
