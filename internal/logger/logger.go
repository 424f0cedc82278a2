// Package logger builds the process-wide structured logger.
//
// Output always goes to stderr: stdout is reserved for the MCP stdio
// transport, and anything printed there corrupts the JSON-RPC stream.
// Components receive a *slog.Logger through their constructors rather
// than reading a package-level global, so tests can pass a discard
// logger and the wiring stays explicit.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format names for New.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// New returns a logger writing to stderr at the given level and format.
// Unknown levels fall back to info and unknown formats to JSON, so a
// misconfigured value never silences logging entirely.
func New(level, format string) *slog.Logger {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter is New with an explicit destination, used by tests to
// capture output.
func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case FormatText:
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a config string to a slog level. Matching is
// case-insensitive; unrecognized values map to info.
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

// Discard returns a logger that drops every record. Constructors use it
// as the fallback when a caller passes nil.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
