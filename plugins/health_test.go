package plugins_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arbor/internal"
	"github.com/dmitrymomot/arbor/plugins"
)

func TestHealth(t *testing.T) {
	t.Parallel()

	healthy := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("connection refused") }
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	t.Run("liveness", func(t *testing.T) {
		t.Parallel()

		app, _ := newTestApp(t)
		require.NoError(t, app.Register(plugins.Health(nil), internal.WithPrefix("/health")))

		res := get(app, "/health/live")
		require.Equal(t, http.StatusOK, res.Code)
		require.Equal(t, "OK", res.Body.String())

		res = request(app, http.MethodGet, "/health/live", map[string]string{"Accept": "application/json"})
		require.JSONEq(t, `{"status":"healthy"}`, res.Body.String())
	})

	t.Run("ready when every check passes", func(t *testing.T) {
		t.Parallel()

		app, _ := newTestApp(t)
		require.NoError(t, app.Register(plugins.Health(plugins.Checks{
			"db":    healthy,
			"queue": healthy,
		}), internal.WithPrefix("/health")))

		res := get(app, "/health/ready?format=json")
		require.Equal(t, http.StatusOK, res.Code)
		require.JSONEq(t, `{"status":"healthy","checks":{"db":{"status":"healthy"},"queue":{"status":"healthy"}}}`, res.Body.String())
	})

	t.Run("unavailable when a check fails", func(t *testing.T) {
		t.Parallel()

		app, logs := newTestApp(t)
		require.NoError(t, app.Register(plugins.Health(plugins.Checks{
			"db":    healthy,
			"cache": broken,
		}), internal.WithPrefix("/health")))

		res := get(app, "/health/ready")
		require.Equal(t, http.StatusServiceUnavailable, res.Code)
		require.Equal(t, "Service Unavailable", res.Body.String())

		res = get(app, "/health/ready?format=json")
		var body plugins.HealthResponse
		require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
		require.Equal(t, plugins.StatusUnhealthy, body.Status)
		require.Equal(t, plugins.CheckResult{Status: plugins.StatusUnhealthy, Error: "connection refused"}, body.Checks["cache"])
		require.Equal(t, plugins.StatusHealthy, body.Checks["db"].Status)
		require.Contains(t, logs.String(), "health check failed")
	})

	t.Run("slow checks hit the timeout", func(t *testing.T) {
		t.Parallel()

		app, _ := newTestApp(t)
		require.NoError(t, app.Register(plugins.Health(
			plugins.Checks{"slow": slow},
			plugins.WithHealthTimeout(20*time.Millisecond),
			plugins.WithHealthPaths("/livez", "/readyz"),
		)))

		res := get(app, "/readyz?format=json")
		require.Equal(t, http.StatusServiceUnavailable, res.Code)
		require.Contains(t, res.Body.String(), context.DeadlineExceeded.Error())
		require.Equal(t, http.StatusOK, get(app, "/livez").Code)
	})

	t.Run("redis check without a client", func(t *testing.T) {
		t.Parallel()

		require.ErrorIs(t, plugins.RedisCheck(nil)(context.Background()), plugins.ErrRedisUnavailable)
	})
}

func TestOpenRedis_InvalidURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := plugins.OpenRedis(ctx, "")
	require.ErrorIs(t, err, plugins.ErrEmptyRedisURL)

	_, err = plugins.OpenRedis(ctx, "http://localhost:6379")
	require.ErrorIs(t, err, plugins.ErrInvalidRedisURL)

	_, err = plugins.OpenRedis(ctx, "redis://localhost:6379/not-a-db")
	require.ErrorIs(t, err, plugins.ErrInvalidRedisURL)
}
