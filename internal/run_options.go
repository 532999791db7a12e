package internal

import (
	"context"
	"net"
	"time"
)

// RunOption configures the server runtime.
type RunOption func(*runConfig)

type runConfig struct {
	listener        net.Listener
	shutdownTimeout time.Duration
	shutdownHooks   []func(context.Context) error
	baseCtx         context.Context
}

func buildRunConfig(opts ...RunOption) *runConfig {
	cfg := &runConfig{
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// ShutdownTimeout sets the timeout for graceful shutdown.
// This applies to the HTTP server, onClose hooks and shutdown hooks together.
// Defaults to 30 seconds.
func ShutdownTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// ShutdownHook registers a cleanup function to run during shutdown, after
// the onClose hooks. Hooks are called in the order they were registered.
//
// Example:
//
//	app.Listen(":8080", arbor.ShutdownHook(func(ctx context.Context) error {
//	    return rdb.Close()
//	}))
func ShutdownHook(fn func(context.Context) error) RunOption {
	return func(c *runConfig) {
		if fn != nil {
			c.shutdownHooks = append(c.shutdownHooks, fn)
		}
	}
}

// WithContext sets a custom base context for signal handling.
// Cancelling it shuts the server down like SIGTERM does.
func WithContext(ctx context.Context) RunOption {
	return func(c *runConfig) {
		if ctx != nil {
			c.baseCtx = ctx
		}
	}
}

// WithListener serves on ln instead of listening on the address.
func WithListener(ln net.Listener) RunOption {
	return func(c *runConfig) {
		if ln != nil {
			c.listener = ln
		}
	}
}
