package internal_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arbor/internal"
)

func TestAbort_ClientGoesAway(t *testing.T) {
	t.Parallel()

	app, logs := newTestApp(t)
	aborted := make(chan struct{})
	var (
		responded   atomic.Bool
		errored     atomic.Bool
		sendErr     atomic.Value
		sawAborted  atomic.Bool
		secondAbort atomic.Int32
	)
	require.NoError(t, app.OnResponse(func(internal.Context) error { responded.Store(true); return nil }))
	require.NoError(t, app.OnError(func(internal.Context, error) error { errored.Store(true); return nil }))
	require.NoError(t, app.OnRequestAbort(func(internal.Context) error {
		return errors.New("first abort hook fails")
	}))
	require.NoError(t, app.OnRequestAbort(func(c internal.Context) error {
		sawAborted.Store(c.Request().Aborted())
		secondAbort.Add(1)
		close(aborted)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, app.GET("/slow", func(c internal.Context) error {
		cancel()
		<-c.Request().AbortSignal()
		sendErr.Store(c.Send("too late"))
		return errors.New("handler error after abort")
	}))

	req := httptest.NewRequest(http.MethodGet, "/slow", nil).WithContext(ctx)
	res := app.Inject(req)

	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("onRequestAbort hooks did not run")
	}

	require.Empty(t, res.Body.String())
	require.False(t, responded.Load())
	require.False(t, errored.Load())
	require.True(t, sawAborted.Load())
	require.EqualValues(t, 1, secondAbort.Load())
	require.ErrorIs(t, sendErr.Load().(error), internal.ErrRequestAborted)
	require.Eventually(t, func() bool {
		return logs.Contains("first abort hook fails")
	}, time.Second, 10*time.Millisecond)
	require.Contains(t, logs.String(), "request aborted")
}

func TestAbort_HandlerReturnsOnCancellation(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t)
	var aborts, errs, responses atomic.Int32
	require.NoError(t, app.OnRequestAbort(func(internal.Context) error { aborts.Add(1); return nil }))
	require.NoError(t, app.OnError(func(internal.Context, error) error { errs.Add(1); return nil }))
	require.NoError(t, app.OnResponse(func(internal.Context) error { responses.Add(1); return nil }))
	require.NoError(t, app.GET("/wait", func(c internal.Context) error {
		<-c.Done()
		return c.Err()
	}))

	const requests = 100
	for range requests {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(time.Millisecond, cancel)
		res := app.Inject(httptest.NewRequest(http.MethodGet, "/wait", nil).WithContext(ctx))
		require.Empty(t, res.Body.String())
		cancel()
	}

	require.EqualValues(t, requests, aborts.Load())
	require.Zero(t, errs.Load())
	require.Zero(t, responses.Load())
}

func TestAbort_WaitsForRunningHook(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t)
	var inHook, overlapped, handled atomic.Bool
	var aborts atomic.Int32
	require.NoError(t, app.OnRequestAbort(func(internal.Context) error {
		overlapped.Store(inHook.Load())
		aborts.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, app.PreHandler(func(internal.Context) error {
		inHook.Store(true)
		defer inHook.Store(false)
		cancel()
		time.Sleep(30 * time.Millisecond)
		return nil
	}))
	require.NoError(t, app.GET("/", func(c internal.Context) error {
		handled.Store(true)
		return c.Send("unreachable")
	}))

	app.Inject(httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	require.EqualValues(t, 1, aborts.Load())
	require.False(t, overlapped.Load())
	require.False(t, handled.Load())
}

func TestAbort_PanickingHookIsIsolated(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t)
	done := make(chan struct{})
	require.NoError(t, app.OnRequestAbort(func(internal.Context) error { panic("abort hook panic") }))
	require.NoError(t, app.AddHook(internal.PhaseOnRequestAbort, func(_ internal.Context, finish internal.Done) {
		close(done)
		finish(nil)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, app.GET("/", func(c internal.Context) error {
		cancel()
		<-c.Request().AbortSignal()
		return nil
	}))

	app.Inject(httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second abort hook did not run")
	}
}

func TestAbort_NotAfterWrite(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t)
	var aborted atomic.Bool
	require.NoError(t, app.OnRequestAbort(func(internal.Context) error { aborted.Store(true); return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, app.OnResponse(func(internal.Context) error {
		// the write already happened; cancelling now is not an abort
		cancel()
		return nil
	}))
	require.NoError(t, app.GET("/", ok))

	res := app.Inject(httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	require.Equal(t, "ok", res.Body.String())

	time.Sleep(20 * time.Millisecond)
	require.False(t, aborted.Load())
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	app, logs := newTestApp(t, internal.WithConnectionTimeout(20*time.Millisecond))
	var timeouts atomic.Int32
	require.NoError(t, app.OnTimeout(func(c internal.Context) error {
		timeouts.Add(1)
		return nil
	}))
	require.NoError(t, app.GET("/slow", func(c internal.Context) error {
		time.Sleep(80 * time.Millisecond)
		return c.Send("finished")
	}))
	require.NoError(t, app.GET("/fast", ok))

	res := get(app, "/slow")
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "finished", res.Body.String())
	require.EqualValues(t, 1, timeouts.Load())
	require.Contains(t, logs.String(), "request timed out")

	require.Equal(t, "ok", get(app, "/fast").Body.String())
	time.Sleep(40 * time.Millisecond)
	require.EqualValues(t, 1, timeouts.Load())
}

func TestTimeout_WaitsForRunningHook(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t, internal.WithConnectionTimeout(10*time.Millisecond))
	var inHook, overlapped atomic.Bool
	var timeouts atomic.Int32
	require.NoError(t, app.OnTimeout(func(c internal.Context) error {
		overlapped.Store(inHook.Load())
		timeouts.Add(1)
		return nil
	}))
	require.NoError(t, app.PreHandler(func(internal.Context) error {
		inHook.Store(true)
		defer inHook.Store(false)
		time.Sleep(40 * time.Millisecond)
		return nil
	}))
	require.NoError(t, app.GET("/", func(c internal.Context) error {
		time.Sleep(60 * time.Millisecond)
		return c.Send("done")
	}))

	res := get(app, "/")
	require.Equal(t, "done", res.Body.String())
	require.EqualValues(t, 1, timeouts.Load())
	require.False(t, overlapped.Load())
}

func TestTimeout_SeesNotFoundRoute(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t, internal.WithConnectionTimeout(10*time.Millisecond))
	var is404 atomic.Bool
	require.NoError(t, app.OnTimeout(func(c internal.Context) error {
		is404.Store(c.Request().Is404())
		return nil
	}))
	require.NoError(t, app.SetNotFoundHandler(func(c internal.Context) error {
		time.Sleep(40 * time.Millisecond)
		return c.String(http.StatusNotFound, "gone")
	}))
	require.NoError(t, app.GET("/", func(c internal.Context) error {
		c.CallNotFound()
		return nil
	}))

	res := get(app, "/")
	require.Equal(t, http.StatusNotFound, res.Code)
	require.Equal(t, "gone", res.Body.String())
	require.True(t, is404.Load())
}
