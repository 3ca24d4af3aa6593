// Package logging builds the server's structured logger. Output goes
// to stderr: stdout carries the MCP stdio transport and must stay
// clean.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a text slog logger at the given level writing to stderr.
// Unknown levels fall back to info.
func New(level string) *slog.Logger {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

func parseLevel(level string) slog.Level {
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
