package internal

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures the application.
type Option func(*App)

// WithLogger sets the application logger. Request loggers derive from it
// with a reqId attribute. Nil keeps the no-op default.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithBodyLimit sets the default maximum request body size in bytes.
// Defaults to 1 MiB. Routes may override it with WithRouteBodyLimit.
func WithBodyLimit(limit int64) Option {
	return func(a *App) {
		if limit > 0 {
			a.bodyLimit = limit
		}
	}
}

// WithGenReqID replaces the request id generator. Defaults to UUIDv7.
func WithGenReqID(fn func(*http.Request) string) Option {
	return func(a *App) {
		if fn != nil {
			a.genReqID = fn
		}
	}
}

// WithRequestIDHeader reuses the request id found in header when present
// and echoes the id back in the same reply header.
//
// Example:
//
//	arbor.New(arbor.WithRequestIDHeader("X-Request-ID"))
func WithRequestIDHeader(header string) Option {
	return func(a *App) {
		if header == "" {
			return
		}
		a.requestIDHeader = header
		gen := a.genReqID
		a.genReqID = func(r *http.Request) string {
			if id := r.Header.Get(header); id != "" {
				return id
			}
			return gen(r)
		}
	}
}

// WithConnectionTimeout fires the onTimeout hooks of requests still being
// dispatched after d. Dispatch itself continues.
func WithConnectionTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.connectionTimeout = d
		}
	}
}

// WithIgnoreTrailingSlash routes "/users/" like "/users".
func WithIgnoreTrailingSlash() Option {
	return func(a *App) {
		a.ignoreTrailingSlash = true
	}
}

// WithTrustProxy takes the client address from X-Real-IP / X-Forwarded-For.
// Only enable it behind a proxy that sets these headers.
func WithTrustProxy() Option {
	return func(a *App) {
		a.trustProxy = true
	}
}

// WithDisableRequestLogging turns off the "incoming request" and
// "request completed" log lines.
func WithDisableRequestLogging() Option {
	return func(a *App) {
		a.disableRequestLogging = true
	}
}

// WithErrorHandler sets the root error handler.
// Panics if h is nil.
func WithErrorHandler(h ErrorHandler) Option {
	return func(a *App) {
		if err := a.SetErrorHandler(h); err != nil {
			panic(err)
		}
	}
}

// WithNotFoundHandler sets the root not-found handler.
// Panics if h is nil.
func WithNotFoundHandler(h HandlerFunc, opts ...NotFoundOption) Option {
	return func(a *App) {
		if err := a.SetNotFoundHandler(h, opts...); err != nil {
			panic(err)
		}
	}
}

// WithReplySerializer sets the root reply serializer.
// Panics if fn is nil.
func WithReplySerializer(fn SerializerFunc) Option {
	return func(a *App) {
		if err := a.SetReplySerializer(fn); err != nil {
			panic(err)
		}
	}
}
