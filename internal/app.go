package internal

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/arbor/pkg/logger"
)

// Default server timeouts (hardcoded, opinionated).
const (
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultMaxHeaderBytes    = 1 << 20 // 1MB
	defaultShutdownTimeout   = 30 * time.Second
)

// App is the root of the instance tree and the http.Handler serving it.
// Registration happens on the embedded root Instance; the first call to
// Ready, Listen or ServeHTTP freezes the tree.
type App struct {
	*Instance

	mux    *chi.Mux
	logger *slog.Logger

	groups map[string]*routeGroup
	routes []*route

	notFound      map[string]*notFoundEntry
	notFoundIndex []*notFoundEntry
	badURL        *route

	defaultParsers parserSet

	frozen    atomic.Bool
	readyOnce sync.Once
	readyErr  error
	closeOnce sync.Once
	closeErr  error

	bodyLimit             int64
	genReqID              func(*http.Request) string
	requestIDHeader       string
	connectionTimeout     time.Duration
	ignoreTrailingSlash   bool
	trustProxy            bool
	disableRequestLogging bool
}

// New creates an application with the given options.
//
// Example:
//
//	app := arbor.New(
//	    arbor.WithLogger(log),
//	    arbor.WithConnectionTimeout(10*time.Second),
//	)
//	err := app.Register(users.Plugin, arbor.WithPrefix("/users"))
func New(opts ...Option) *App {
	a := &App{
		mux:       chi.NewRouter(),
		logger:    logger.NewNope(),
		groups:    make(map[string]*routeGroup),
		notFound:  make(map[string]*notFoundEntry),
		bodyLimit: defaultBodyLimit,
		genReqID:  newRequestID,
	}
	a.Instance = newInstance(a, nil, "", "")
	a.defaultParsers = parserSet{
		"application/json": {owner: a.Instance, parse: parseJSON},
		"text/plain":       {owner: a.Instance, parse: parseText},
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.trustProxy {
		a.mux.Use(middleware.RealIP)
	}
	if a.ignoreTrailingSlash {
		a.mux.Use(middleware.StripSlashes)
	}
	a.mux.NotFound(a.serveNotFound)
	a.mux.MethodNotAllowed(a.serveNotFound)
	return a
}

// newRequestID generates a time-ordered request id.
func newRequestID(*http.Request) string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Ready freezes the tree, completes the not-found table and runs onReady
// hooks root-first. It runs once; later calls return the first result.
func (a *App) Ready(ctx context.Context) error {
	a.readyOnce.Do(func() {
		a.frozen.Store(true)
		if err := a.buildNotFound(); err != nil {
			a.readyErr = err
			return
		}
		chains, err := a.Instance.routeChains(nil)
		if err != nil {
			a.readyErr = err
			return
		}
		a.badURL = &route{
			owner:      a.Instance,
			chains:     chains,
			parsers:    a.Instance.contentParsers(),
			serializer: a.Instance.replySerializer(),
			config:     map[string]any{},
			url:        "/",
			bodyLimit:  a.bodyLimit,
		}
		if err := a.Instance.runReady(ctx); err != nil {
			a.readyErr = err
			return
		}
		a.logger.Debug("application ready", slog.Int("routes", len(a.routes)))
	})
	return a.readyErr
}

// Close runs onClose hooks children-first. Every hook runs; their errors
// are joined. Close runs once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.frozen.Store(true)
		a.closeErr = a.Instance.runClose(ctx)
	})
	return a.closeErr
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := a.Ready(r.Context()); err != nil {
		a.logger.Error("application failed to start", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !utf8.ValidString(r.URL.Path) {
		a.serveBadURL(w, r)
		return
	}
	a.mux.ServeHTTP(w, r)
}

// serveBadURL answers a request whose path is not valid UTF-8 through the
// root error pipeline. Not-found handlers never see it.
func (a *App) serveBadURL(w http.ResponseWriter, r *http.Request) {
	d := a.newDispatch(w, r, a.badURL)
	d.serve(func() {
		d.fail(ErrBadURL(r.URL.EscapedPath()))
	})
}

// Inject dispatches r in-process and returns the recorded response.
//
// Example:
//
//	res := app.Inject(httptest.NewRequest(http.MethodGet, "/health", nil))
//	require.Equal(t, http.StatusOK, res.Code)
func (a *App) Inject(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, r)
	return rec
}
