package plugins_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dmitrymomot/arbor/internal"
	"github.com/dmitrymomot/arbor/pkg/logger"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestApp(t *testing.T, opts ...internal.Option) (*internal.App, *syncBuffer) {
	t.Helper()
	logs := &syncBuffer{}
	opts = append([]internal.Option{internal.WithLogger(logger.NewWriter(logs))}, opts...)
	return internal.New(opts...), logs
}

func request(app *internal.App, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for name, value := range header {
		req.Header.Set(name, value)
	}
	return app.Inject(req)
}

func get(app *internal.App, target string) *httptest.ResponseRecorder {
	return request(app, http.MethodGet, target, nil)
}

func text(body string) internal.HandlerFunc {
	return func(c internal.Context) error { return c.String(http.StatusOK, body) }
}
