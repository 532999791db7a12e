// Package logger builds the structured loggers used by arbor applications.
//
// New creates a log/slog logger from a Config: level, json or text format,
// output writer and optional Sentry forwarding. Context extractors attach
// request-scoped attributes to every record logged with a context:
//
//	log := logger.New(logger.Config{Level: "debug", Format: "text"}, arbor.LogRequestID())
//	log.InfoContext(c, "user loaded", slog.String("user_id", id))
//
// When Sentry.DSN is empty, or the SDK fails to initialize, records go to the
// output writer only. Errors create Sentry issues; warnings are stored as
// Sentry logs unless MinLevel is error.
//
// NewNope returns a logger that discards everything and is the default for
// applications built without WithLogger.
package logger
