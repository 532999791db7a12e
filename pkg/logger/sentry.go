package logger

import (
	"context"
	"log/slog"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// SentryConfig holds Sentry integration configuration.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
	// MinLevel is warn or error: the lowest level stored as Sentry logs.
	// Errors always create Sentry issues.
	MinLevel string `yaml:"min_level"`
}

// newSentryHandler initializes the Sentry SDK. It returns nil when no DSN is
// configured or initialization fails; fallback receives the failure.
func newSentryHandler(cfg SentryConfig, fallback slog.Handler) slog.Handler {
	if cfg.DSN == "" {
		return nil
	}
	environment := cfg.Environment
	if environment == "" {
		environment = "production"
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: environment,
		EnableLogs:  true,
	}); err != nil {
		slog.New(fallback).Error("failed to initialize Sentry", slog.String("error", err.Error()))
		return nil
	}

	logLevel := []slog.Level{slog.LevelWarn, slog.LevelError}
	if ParseLevel(cfg.MinLevel) == slog.LevelError {
		logLevel = []slog.Level{slog.LevelError}
	}
	return sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   logLevel,
	}.NewSentryHandler(context.Background())
}
