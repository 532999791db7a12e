package plugins_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arbor/internal"
	"github.com/dmitrymomot/arbor/plugins"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	res := func(body string) *plugins.CachedResponse {
		return &plugins.CachedResponse{StatusCode: http.StatusOK, Body: []byte(body)}
	}

	t.Run("get set delete", func(t *testing.T) {
		t.Parallel()

		store := plugins.NewMemoryStore()
		t.Cleanup(func() { _ = store.Close() })

		_, err := store.Get(ctx, "k")
		require.ErrorIs(t, err, plugins.ErrCacheMiss)

		require.NoError(t, store.Set(ctx, "k", res("v1"), 0))
		require.NoError(t, store.Set(ctx, "k", res("v2"), 0))
		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "v2", string(got.Body))
		require.Equal(t, 1, store.Len())

		require.NoError(t, store.Delete(ctx, "k"))
		require.NoError(t, store.Delete(ctx, "missing"))
		_, err = store.Get(ctx, "k")
		require.ErrorIs(t, err, plugins.ErrCacheMiss)
	})

	t.Run("expired entries are misses", func(t *testing.T) {
		t.Parallel()

		store := plugins.NewMemoryStore(plugins.WithCleanupInterval(0))
		require.NoError(t, store.Set(ctx, "short", res("v"), time.Millisecond))
		require.NoError(t, store.Set(ctx, "forever", res("v"), 0))
		time.Sleep(5 * time.Millisecond)

		_, err := store.Get(ctx, "short")
		require.ErrorIs(t, err, plugins.ErrCacheMiss)
		_, err = store.Get(ctx, "forever")
		require.NoError(t, err)
	})

	t.Run("janitor drops expired entries", func(t *testing.T) {
		t.Parallel()

		store := plugins.NewMemoryStore(plugins.WithCleanupInterval(5 * time.Millisecond))
		t.Cleanup(func() { _ = store.Close() })
		require.NoError(t, store.Set(ctx, "k", res("v"), time.Millisecond))

		require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("least recently used entry is evicted", func(t *testing.T) {
		t.Parallel()

		store := plugins.NewMemoryStore(plugins.WithMaxEntries(2), plugins.WithCleanupInterval(0))
		require.NoError(t, store.Set(ctx, "a", res("a"), 0))
		require.NoError(t, store.Set(ctx, "b", res("b"), 0))
		_, err := store.Get(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, "c", res("c"), 0))

		_, err = store.Get(ctx, "b")
		require.ErrorIs(t, err, plugins.ErrCacheMiss)
		_, err = store.Get(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, 2, store.Len())
	})

	t.Run("closed store rejects writes", func(t *testing.T) {
		t.Parallel()

		store := plugins.NewMemoryStore()
		require.NoError(t, store.Close())
		require.NoError(t, store.Close())
		require.ErrorIs(t, store.Set(ctx, "k", res("v"), 0), plugins.ErrStoreClosed)
		require.ErrorIs(t, store.Delete(ctx, "k"), plugins.ErrStoreClosed)
	})
}

func TestCache(t *testing.T) {
	t.Parallel()

	store := plugins.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	var calls atomic.Int32
	app, _ := newTestApp(t)
	require.NoError(t, app.Register(func(catalog *internal.Instance) error {
		if err := catalog.Register(plugins.Cache(store,
			plugins.WithCacheTTL(time.Minute),
			plugins.WithCachedHeaders("X-Version"),
			plugins.WithCacheSkip(func(c internal.Context) bool { return c.Query("fresh") == "1" }),
		), internal.WithoutEncapsulation()); err != nil {
			return err
		}
		if err := catalog.GET("/items/:id", func(c internal.Context) error {
			calls.Add(1)
			c.SetHeader("X-Version", "7")
			return c.JSON(http.StatusOK, map[string]string{"id": c.Param("id")})
		}); err != nil {
			return err
		}
		if err := catalog.GET("/broken", func(c internal.Context) error {
			calls.Add(1)
			return internal.ErrServiceUnavailable("later")
		}); err != nil {
			return err
		}
		return catalog.POST("/items", func(c internal.Context) error {
			calls.Add(1)
			return c.String(http.StatusCreated, "created")
		})
	}, internal.WithPrefix("/catalog")))
	require.NoError(t, app.GET("/uncached", func(c internal.Context) error {
		calls.Add(1)
		return c.String(http.StatusOK, "plain")
	}))

	t.Run("miss then hit", func(t *testing.T) {
		res := get(app, "/catalog/items/1")
		require.Equal(t, http.StatusOK, res.Code)
		require.Equal(t, "MISS", res.Header().Get(plugins.HeaderXCache))
		require.JSONEq(t, `{"id":"1"}`, res.Body.String())
		require.EqualValues(t, 1, calls.Load())

		res = get(app, "/catalog/items/1")
		require.Equal(t, http.StatusOK, res.Code)
		require.Equal(t, "HIT", res.Header().Get(plugins.HeaderXCache))
		require.JSONEq(t, `{"id":"1"}`, res.Body.String())
		require.Equal(t, "application/json; charset=utf-8", res.Header().Get("Content-Type"))
		require.Equal(t, "7", res.Header().Get("X-Version"))
		require.EqualValues(t, 1, calls.Load())

		// HEAD shares the entry
		res = request(app, http.MethodHead, "/catalog/items/1", nil)
		require.Equal(t, "HIT", res.Header().Get(plugins.HeaderXCache))
		require.Empty(t, res.Body.String())
		require.EqualValues(t, 1, calls.Load())
	})

	t.Run("skipped, failed and unsafe requests are not cached", func(t *testing.T) {
		before := calls.Load()

		for range 2 {
			require.Empty(t, get(app, "/catalog/items/2?fresh=1").Header().Get(plugins.HeaderXCache))
			require.Equal(t, http.StatusServiceUnavailable, get(app, "/catalog/broken").Code)
			require.Equal(t, http.StatusCreated, request(app, http.MethodPost, "/catalog/items", nil).Code)
			require.Empty(t, get(app, "/uncached").Header().Get(plugins.HeaderXCache))
		}
		require.EqualValues(t, before+8, calls.Load())
	})
}

func TestCache_CustomKey(t *testing.T) {
	t.Parallel()

	store := plugins.NewMemoryStore(plugins.WithCleanupInterval(0))
	app, _ := newTestApp(t)
	require.NoError(t, app.Register(plugins.Cache(store,
		plugins.WithCacheKey(func(c internal.Context) string { return "tenant:" + c.Header("X-Tenant") }),
	), internal.WithoutEncapsulation()))
	require.NoError(t, app.GET("/", func(c internal.Context) error {
		return c.String(http.StatusOK, "for "+c.Header("X-Tenant"))
	}))

	require.Equal(t, "for a", request(app, http.MethodGet, "/", map[string]string{"X-Tenant": "a"}).Body.String())
	require.Equal(t, "for b", request(app, http.MethodGet, "/", map[string]string{"X-Tenant": "b"}).Body.String())

	cached, err := store.Get(context.Background(), "tenant:a")
	require.NoError(t, err)
	require.Equal(t, "for a", string(cached.Body))
	require.Equal(t, "text/plain; charset=utf-8", cached.Header["Content-Type"])
}

func TestCache_NilStore(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t)
	err := app.Register(plugins.Cache(nil), internal.WithName("cache"))
	require.ErrorIs(t, err, plugins.ErrNilStore)
}
