package plugins_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arbor/internal"
	"github.com/dmitrymomot/arbor/plugins"
)

func corsApp(t *testing.T, opts ...plugins.CORSOption) *internal.App {
	t.Helper()
	app, _ := newTestApp(t)
	require.NoError(t, app.Register(plugins.CORS(opts...), internal.WithoutEncapsulation()))
	require.NoError(t, app.GET("/items", text("items")))
	require.NoError(t, app.POST("/items", text("created")))
	return app
}

func TestCORS(t *testing.T) {
	t.Parallel()

	t.Run("default configuration allows all origins", func(t *testing.T) {
		t.Parallel()

		app := corsApp(t)
		res := request(app, http.MethodGet, "/items", map[string]string{"Origin": "http://example.com"})
		require.Equal(t, http.StatusOK, res.Code)
		require.Equal(t, "items", res.Body.String())
		require.Equal(t, "*", res.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "Origin", res.Header().Get("Vary"))
		require.Empty(t, res.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("no CORS headers when Origin header is missing", func(t *testing.T) {
		t.Parallel()

		res := get(corsApp(t), "/items")
		require.Equal(t, http.StatusOK, res.Code)
		require.Empty(t, res.Header().Get("Access-Control-Allow-Origin"))
		require.Empty(t, res.Header().Get("Vary"))
	})

	t.Run("specific origins list", func(t *testing.T) {
		t.Parallel()

		app := corsApp(t, plugins.WithAllowOrigins("http://allowed.com", "http://also-allowed.com"))

		res := request(app, http.MethodGet, "/items", map[string]string{"Origin": "http://also-allowed.com"})
		require.Equal(t, "http://also-allowed.com", res.Header().Get("Access-Control-Allow-Origin"))

		res = request(app, http.MethodGet, "/items", map[string]string{"Origin": "http://evil.com"})
		require.Equal(t, http.StatusOK, res.Code)
		require.Empty(t, res.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("origin func overrides the list", func(t *testing.T) {
		t.Parallel()

		app := corsApp(t,
			plugins.WithAllowOrigins("http://listed.com"),
			plugins.WithAllowOriginFunc(func(origin string) bool {
				return strings.HasSuffix(origin, ".example.com")
			}),
		)

		res := request(app, http.MethodGet, "/items", map[string]string{"Origin": "https://app.example.com"})
		require.Equal(t, "https://app.example.com", res.Header().Get("Access-Control-Allow-Origin"))

		res = request(app, http.MethodGet, "/items", map[string]string{"Origin": "http://listed.com"})
		require.Empty(t, res.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("credentials echo the origin", func(t *testing.T) {
		t.Parallel()

		app := corsApp(t, plugins.WithAllowCredentials(), plugins.WithExposeHeaders("X-Total", "X-Page"))
		res := request(app, http.MethodGet, "/items", map[string]string{"Origin": "http://example.com"})
		require.Equal(t, "http://example.com", res.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", res.Header().Get("Access-Control-Allow-Credentials"))
		require.Equal(t, "X-Total, X-Page", res.Header().Get("Access-Control-Expose-Headers"))
	})

	t.Run("preflight is answered before routing", func(t *testing.T) {
		t.Parallel()

		app := corsApp(t,
			plugins.WithAllowMethods(http.MethodGet, http.MethodPost),
			plugins.WithAllowHeaders("Content-Type", "X-Token"),
			plugins.WithMaxAge(10*time.Minute),
		)

		// no OPTIONS route exists; the not-found route carries the hook
		res := request(app, http.MethodOptions, "/items", map[string]string{
			"Origin":                        "http://example.com",
			"Access-Control-Request-Method": http.MethodPost,
		})
		require.Equal(t, http.StatusNoContent, res.Code)
		require.Empty(t, res.Body.String())
		require.Equal(t, "*", res.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "GET, POST", res.Header().Get("Access-Control-Allow-Methods"))
		require.Equal(t, "Content-Type, X-Token", res.Header().Get("Access-Control-Allow-Headers"))
		require.Equal(t, "600", res.Header().Get("Access-Control-Max-Age"))
		require.Equal(t, "Origin, Access-Control-Request-Method, Access-Control-Request-Headers", res.Header().Get("Vary"))
	})

	t.Run("plain OPTIONS is not a preflight", func(t *testing.T) {
		t.Parallel()

		res := request(corsApp(t), http.MethodOptions, "/items", map[string]string{"Origin": "http://example.com"})
		require.Equal(t, http.StatusNotFound, res.Code)
		require.Equal(t, "*", res.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("config struct keeps defaults for empty fields", func(t *testing.T) {
		t.Parallel()

		app := corsApp(t, plugins.WithCORSConfig(plugins.CORSConfig{
			AllowOrigins: []string{"http://example.com"},
			MaxAge:       time.Minute,
		}))
		res := request(app, http.MethodOptions, "/items", map[string]string{
			"Origin":                        "http://example.com",
			"Access-Control-Request-Method": http.MethodGet,
		})
		require.Equal(t, http.StatusNoContent, res.Code)
		require.Equal(t, "http://example.com", res.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "60", res.Header().Get("Access-Control-Max-Age"))
		require.Equal(t, "Origin, Content-Type, Accept, Authorization", res.Header().Get("Access-Control-Allow-Headers"))
	})
}

func TestCORS_Encapsulated(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t)
	require.NoError(t, app.GET("/private", text("private")))
	require.NoError(t, app.Register(func(public *internal.Instance) error {
		if err := public.Register(plugins.CORS(), internal.WithoutEncapsulation()); err != nil {
			return err
		}
		return public.GET("/data", text("data"))
	}, internal.WithPrefix("/public")))

	origin := map[string]string{"Origin": "http://example.com"}
	require.Equal(t, "*", request(app, http.MethodGet, "/public/data", origin).Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, request(app, http.MethodGet, "/private", origin).Header().Get("Access-Control-Allow-Origin"))
}
