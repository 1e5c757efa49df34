// Package log provides structured logging utilities for stobixd.
// It wraps the standard library's slog package with additional convenience methods.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a new logger writing to stdout
func New(service, version, level, format string) *Logger {
	return NewWithWriter(os.Stdout, service, version, level, format)
}

// NewWithWriter creates a new logger writing to w
func NewWithWriter(w io.Writer, service, version, level, format string) *Logger {
	var handler slog.Handler

	logLevel := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	baseLogger := slog.New(handler).With(
		"service", service,
		"version", version,
	)

	return &Logger{
		Logger:  baseLogger,
		service: service,
		version: version,
	}
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel maps a textual level to slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext returns a logger with additional context fields
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	if cycle := ctx.Value(cycleKey{}); cycle != nil {
		logger = logger.With("cycle", cycle)
	}

	return &Logger{
		Logger:  logger,
		service: l.service,
		version: l.version,
	}
}

type cycleKey struct{}

// ContextWithCycle tags ctx with the orchestration cycle number
func ContextWithCycle(ctx context.Context, cycle int) context.Context {
	return context.WithValue(ctx, cycleKey{}, cycle)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithAccount returns a logger with account-specific fields
func (l *Logger) WithAccount(index, total int, address string) *Logger {
	return l.WithFields("account", index+1, "accounts", total, "wallet", address)
}

// WithTask returns a logger with a task field
func (l *Logger) WithTask(taskID string) *Logger {
	return l.WithFields("task_id", taskID)
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// LogDuration logs the duration of an operation
func (l *Logger) LogDuration(operation string, duration time.Duration) {
	l.Info("operation completed",
		"operation", operation,
		"duration_ms", float64(duration)/1e6,
	)
}

// LogCycle logs the outcome of one orchestration cycle
func (l *Logger) LogCycle(cycle, total, succeeded, failed int, duration time.Duration, next time.Duration) {
	l.Info("all accounts processed",
		"cycle", cycle,
		"accounts", total,
		"succeeded", succeeded,
		"failed", failed,
		"duration", duration.Round(time.Millisecond).String(),
		"next_cycle_in", next.String(),
	)
}

// LogRequestRetry logs a swallowed failure that will be retried
func (l *Logger) LogRequestRetry(url string, attempt, maxAttempts int, delay time.Duration, message string) {
	l.Warn("retrying request",
		"url", url,
		"attempt", attempt,
		"max_attempts", maxAttempts,
		"wait", delay.String(),
		"message", message,
	)
}
