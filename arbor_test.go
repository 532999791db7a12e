package arbor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arbor"
)

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func usersPlugin(api *arbor.Instance) error {
	if err := api.Decorate("store", map[int]string{1: "ann"}); err != nil {
		return err
	}
	if err := api.OnRequest(func(c arbor.Context) error {
		if c.Header("Authorization") == "" {
			return arbor.ErrUnauthorized("missing token", arbor.WithErrorCode("NO_TOKEN"))
		}
		return nil
	}); err != nil {
		return err
	}
	return api.GET("/users/:id", func(c arbor.Context) error {
		store, _ := arbor.Decoration[map[int]string](c, "store")
		id := arbor.Param[int](c, "id")
		name, found := store[id]
		if !found {
			return arbor.ErrNotFound("user not found")
		}
		return c.JSON(http.StatusOK, user{ID: id, Name: name})
	})
}

func TestApp(t *testing.T) {
	t.Parallel()

	app := arbor.New(arbor.WithRequestIDHeader("X-Request-ID"))
	require.NoError(t, app.Register(usersPlugin, arbor.WithPrefix("/v1"), arbor.WithName("users")))
	require.NoError(t, app.GET("/health", func(c arbor.Context) error {
		return c.String(http.StatusOK, "ok")
	}))
	require.NoError(t, app.Ready(context.Background()))
	defer func() { require.NoError(t, app.Close(context.Background())) }()

	authed := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer token")
		return app.Inject(req)
	}

	res := authed("/v1/users/1")
	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `{"id":1,"name":"ann"}`, res.Body.String())
	require.NotEmpty(t, res.Header().Get("X-Request-ID"))

	res = authed("/v1/users/2")
	require.Equal(t, http.StatusNotFound, res.Code)
	require.Contains(t, res.Body.String(), "user not found")

	res = app.Inject(httptest.NewRequest(http.MethodGet, "/v1/users/1", nil))
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Contains(t, res.Body.String(), `"code":"NO_TOKEN"`)

	// the auth hook is encapsulated in the plugin
	res = app.Inject(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, "ok", res.Body.String())

	require.ErrorIs(t, app.GET("/late", func(arbor.Context) error { return nil }), arbor.ErrAlreadyBound)
	require.Len(t, app.Routes(), 2)
}

func TestApp_FromConfig(t *testing.T) {
	t.Parallel()

	cfg, err := arbor.ParseConfig(strings.NewReader("ignore_trailing_slash: true\nbody_limit: 4\n"))
	require.NoError(t, err)

	app := arbor.New(arbor.WithConfig(cfg))
	require.NoError(t, app.POST("/echo", func(c arbor.Context) error {
		return c.Send(c.Request().Body())
	}))

	req := httptest.NewRequest(http.MethodPost, "/echo/", strings.NewReader("hi"))
	req.Header.Set("Content-Type", "text/plain")
	require.Equal(t, "hi", app.Inject(req).Body.String())

	req = httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("too long"))
	req.Header.Set("Content-Type", "text/plain")
	require.Equal(t, http.StatusRequestEntityTooLarge, app.Inject(req).Code)
}
