package internal_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arbor/internal"
)

func TestListen_GracefulShutdown(t *testing.T) {
	t.Parallel()

	app, logs := newTestApp(t)
	var (
		ready    atomic.Bool
		closed   atomic.Bool
		shutdown atomic.Bool
	)
	require.NoError(t, app.OnReady(func(context.Context) error { ready.Store(true); return nil }))
	require.NoError(t, app.OnClose(func(context.Context) error { closed.Store(true); return nil }))
	require.NoError(t, app.GET("/ping", func(c internal.Context) error { return c.Send("pong") }))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen("", internal.WithListener(ln), internal.WithContext(ctx),
			internal.ShutdownTimeout(time.Second),
			internal.ShutdownHook(func(context.Context) error { shutdown.Store(true); return nil }),
		)
	}()

	url := "http://" + ln.Addr().String() + "/ping"
	require.Eventually(t, func() bool {
		res, err := http.Get(url)
		if err != nil {
			return false
		}
		defer res.Body.Close()
		body, _ := io.ReadAll(res.Body)
		return res.StatusCode == http.StatusOK && string(body) == "pong"
	}, 2*time.Second, 20*time.Millisecond)
	require.True(t, ready.Load())

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Listen did not return after context cancellation")
	}

	require.True(t, closed.Load())
	require.True(t, shutdown.Load())
	require.Contains(t, logs.String(), "shutdown completed")
}

func TestListen_JoinsShutdownErrors(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t)
	closeErr := errors.New("close failed")
	hookErr := errors.New("hook failed")
	require.NoError(t, app.OnClose(func(context.Context) error { return closeErr }))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = app.Listen("", internal.WithListener(ln), internal.WithContext(ctx),
		internal.ShutdownHook(func(context.Context) error { return hookErr }),
	)
	require.ErrorIs(t, err, closeErr)
	require.ErrorIs(t, err, hookErr)
}

func TestListen_ReadyFailure(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t)
	boom := errors.New("no database")
	require.NoError(t, app.OnReady(func(context.Context) error { return boom }))

	err := app.Listen("127.0.0.1:0")
	require.ErrorIs(t, err, boom)
}
