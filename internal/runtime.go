package internal

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// Listen readies the application, serves it on addr and blocks until
// SIGINT, SIGTERM or the WithContext context ends. Shutdown drains the
// server, then runs onClose hooks and shutdown hooks.
//
// Example:
//
//	err := app.Listen(":8080", arbor.ShutdownTimeout(10*time.Second))
func (a *App) Listen(addr string, opts ...RunOption) error {
	cfg := buildRunConfig(opts...)
	if addr == "" {
		addr = ":8080"
	}
	log := a.logger

	baseCtx := cfg.baseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Ready(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           a,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		MaxHeaderBytes:    defaultMaxHeaderBytes,
	}

	ln := cfg.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", addr); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("address", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
		log.Error("onClose hooks failed", slog.Any("error", err))
	}
	for _, hook := range cfg.shutdownHooks {
		if err := hook(shutdownCtx); err != nil {
			errs = append(errs, err)
			log.Error("shutdown hook failed", slog.Any("error", err))
		}
	}

	if len(errs) > 0 {
		log.Error("shutdown completed with errors")
		return errors.Join(errs...)
	}
	log.Info("shutdown completed")
	return nil
}
