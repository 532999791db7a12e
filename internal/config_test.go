package internal_test

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arbor/internal"
	"github.com/dmitrymomot/arbor/pkg/logger"
)

const sampleConfig = `
addr: ":9090"
shutdown_timeout: 20s
body_limit: 16
request_id_header: X-Request-ID
connection_timeout: 10s
ignore_trailing_slash: true
log:
  level: debug
  format: text
plugins:
  cors:
    origins: ["https://example.com"]
    max_age: 600
`

func TestParseConfig(t *testing.T) {
	t.Parallel()

	cfg, err := internal.ParseConfig(strings.NewReader(sampleConfig))
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Addr)
	require.Equal(t, 20*time.Second, cfg.ShutdownTimeout)
	require.EqualValues(t, 16, cfg.BodyLimit)
	require.Equal(t, "X-Request-ID", cfg.RequestIDHeader)
	require.Equal(t, 10*time.Second, cfg.ConnectionTimeout)
	require.True(t, cfg.IgnoreTrailingSlash)
	require.False(t, cfg.TrustProxy)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format)

	var cors struct {
		Origins []string `yaml:"origins"`
		MaxAge  int      `yaml:"max_age"`
	}
	found, err := cfg.PluginConfig("cors", &cors)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"https://example.com"}, cors.Origins)
	require.Equal(t, 600, cors.MaxAge)

	found, err = cfg.PluginConfig("metrics", &cors)
	require.NoError(t, err)
	require.False(t, found)

	var wrong struct {
		Origins int `yaml:"origins"`
	}
	_, err = cfg.PluginConfig("cors", &wrong)
	require.Error(t, err)
}

func TestParseConfig_Errors(t *testing.T) {
	t.Parallel()

	cfg, err := internal.ParseConfig(strings.NewReader("  \n"))
	require.NoError(t, err)
	require.Equal(t, internal.Config{}, cfg)

	_, err = internal.ParseConfig(strings.NewReader("adress: \":8080\"\n"))
	require.Error(t, err)

	_, err = internal.ParseConfig(strings.NewReader("shutdown_timeout: soon\n"))
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "arbor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":7070\"\n"), 0o600))

	cfg, err := internal.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.Addr)

	_, err = internal.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWithConfig(t *testing.T) {
	t.Parallel()

	cfg, err := internal.ParseConfig(strings.NewReader(`
body_limit: 16
request_id_header: X-Request-ID
ignore_trailing_slash: true
`))
	require.NoError(t, err)

	app, _ := newTestApp(t, internal.WithConfig(cfg))
	require.NoError(t, app.POST("/items", func(c internal.Context) error {
		return c.Send(c.Request().ID())
	}))

	req, _ := http.NewRequest(http.MethodPost, "/items/", strings.NewReader("short"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Request-ID", "from-proxy")
	res := app.Inject(req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "from-proxy", res.Body.String())

	res = send(app, http.MethodPost, "/items", "text/plain", strings.Repeat("x", 32))
	require.Equal(t, http.StatusRequestEntityTooLarge, res.Code)
}

func TestLogRequestID(t *testing.T) {
	t.Parallel()

	logs := &syncBuffer{}
	log := logger.New(logger.Config{Output: logs, Level: "debug"}, internal.LogRequestID())
	app := internal.New(
		internal.WithLogger(log),
		internal.WithGenReqID(func(*http.Request) string { return "req-42" }),
		internal.WithDisableRequestLogging(),
	)
	require.NoError(t, app.GET("/", func(c internal.Context) error {
		c.Instance().App().Logger().InfoContext(c, "inside handler")
		return c.Send("ok")
	}))

	require.Equal(t, http.StatusOK, get(app, "/").Code)
	require.Contains(t, logs.String(), `"msg":"inside handler","reqId":"req-42"`)
}
