// Package logging defines a minimal structured-logging interface used across
// the project, with zerolog and slog implementations.
package logging

import (
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "starting server", "addr", addr, "mode", mode)
type Logger interface {
	// Debug logs diagnostic detail, normally disabled in production.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Backend names accepted by New.
const (
	BackendZerolog = "zerolog"
	BackendSlog    = "slog"
)

// New builds a JSON logger writing to w. Unknown backends fall back to
// zerolog; unknown levels fall back to info.
func New(backend, level string, w io.Writer) Logger {
	switch strings.ToLower(backend) {
	case BackendSlog:
		return newSlogJSON(level, w)
	default:
		lvl, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil || level == "" {
			lvl = zerolog.InfoLevel
		}
		zl := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
		return NewZerologLogger(zl)
	}
}
