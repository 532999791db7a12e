package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config describes the application logger.
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Format is json or text. Defaults to json.
	Format string `yaml:"format"`

	// Output receives the log lines. Defaults to os.Stdout.
	Output io.Writer `yaml:"-"`

	Sentry SentryConfig `yaml:"sentry"`
}

// New creates a logger from cfg with optional context extractors.
// Records at or above the Sentry level are forwarded to Sentry when a DSN is set.
func New(cfg Config, extractors ...ContextExtractor) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	if sentryHandler := newSentryHandler(cfg.Sentry, handler); sentryHandler != nil {
		handler = Fanout(handler, sentryHandler)
	}
	return slog.New(NewLogHandlerDecorator(handler, extractors...))
}

// ParseLevel maps a level name to a slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
