package logger

import (
	"context"
	"errors"
	"log/slog"
)

// fanout delivers every record to each sink that accepts its level.
type fanout []slog.Handler

// Fanout returns a handler writing to all sinks, e.g. the console handler
// and the Sentry handler. A failing sink does not stop delivery to the
// others; their errors are joined.
func Fanout(sinks ...slog.Handler) slog.Handler {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return fanout(sinks)
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sink := range f {
		if sink.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, rec slog.Record) error {
	var errs []error
	for _, sink := range f {
		if !sink.Enabled(ctx, rec.Level) {
			continue
		}
		if err := sink.Handle(ctx, rec.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, sink := range f {
		out[i] = fn(sink)
	}
	return out
}
