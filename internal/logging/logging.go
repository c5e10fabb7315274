// Package logging provides structured logger construction with credential
// redaction, using the standard library slog package.
//
// Construction:
//
//	logger := logging.New("info", "text", os.Stderr)
//
// Error logging convention: include the stage or operation name, the target
// identifiers involved, and the full error chain via slog.Any("error", err).
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New creates a configured *slog.Logger.
//
// The level parameter sets the minimum log level ("debug", "info", "warn",
// "error"); unrecognized values default to info. The format parameter selects
// the handler: "json" uses slog.NewJSONHandler, anything else text.
//
// All handlers redact token-like attributes and values; see redact.go.
func New(level, format string, w io.Writer) *slog.Logger {
	lvl := parseLevel(level)

	opts := &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   lvl == slog.LevelDebug,
		ReplaceAttr: newRedactAttr(),
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// parseLevel converts a level string to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
