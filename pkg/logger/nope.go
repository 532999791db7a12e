package logger

import (
	"io"
	"log/slog"
)

// NewNope creates a no-op logger that discards all output.
func NewNope() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewWriter creates a JSON logger at debug level writing to w. Tests use it
// to assert on log lines.
func NewWriter(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
