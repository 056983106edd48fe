// Package logging adapts log/slog to the printf style auth.Logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// SlogLogger formats the message and hands it to slog with the fixed
// attributes given through With.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

// New builds a logger writing to w. format is "json" or "text", level is
// one of debug, info, warn, error.
func New(w io.Writer, format, level string) *SlogLogger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	return NewSlogLogger(slog.New(h))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func (s *SlogLogger) Debug(format string, args ...any) {
	s.l.Debug(sprintf(format, args))
}

func (s *SlogLogger) Info(format string, args ...any) {
	s.l.Info(sprintf(format, args))
}

func (s *SlogLogger) Warn(format string, args ...any) {
	s.l.Warn(sprintf(format, args))
}

func (s *SlogLogger) Error(format string, args ...any) {
	s.l.Error(sprintf(format, args))
}

// With returns a child logger that always includes the given key-value pairs
func (s *SlogLogger) With(args ...any) *SlogLogger {
	return &SlogLogger{l: s.l.With(args...)}
}

// Slog exposes the underlying logger, e.g. for fiber's request logging
func (s *SlogLogger) Slog() *slog.Logger {
	return s.l
}

func sprintf(format string, args []any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
