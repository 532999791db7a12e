package plugins

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/arbor/internal"
)

const (
	defaultHealthTimeout = 5 * time.Second

	// StatusHealthy indicates all checks passed.
	StatusHealthy = "healthy"
	// StatusUnhealthy indicates one or more checks failed.
	StatusUnhealthy = "unhealthy"
)

// CheckFunc is a readiness check.
type CheckFunc func(ctx context.Context) error

// Checks is a map of named readiness checks.
type Checks map[string]CheckFunc

// HealthResponse is the JSON body of a probe.
type HealthResponse struct {
	Checks map[string]CheckResult `json:"checks,omitempty"`
	Status string                 `json:"status"`
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthOptions struct {
	livePath  string
	readyPath string
	timeout   time.Duration
}

// HealthOption configures the Health plugin.
type HealthOption func(*healthOptions)

// WithHealthTimeout bounds the whole readiness run.
func WithHealthTimeout(d time.Duration) HealthOption {
	return func(o *healthOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHealthPaths sets the liveness and readiness routes, "/live" and
// "/ready" by default.
func WithHealthPaths(live, ready string) HealthOption {
	return func(o *healthOptions) {
		o.livePath = live
		o.readyPath = ready
	}
}

// Health returns a plugin serving liveness and readiness probes.
//
// Liveness always answers OK. Readiness runs every check in parallel under
// a shared timeout and answers 503 when any of them fails. Both answer
// plain text unless the client asks for JSON with an Accept header or
// ?format=json.
func Health(checks Checks, opts ...HealthOption) internal.PluginFunc {
	o := healthOptions{
		livePath:  "/live",
		readyPath: "/ready",
		timeout:   defaultHealthTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(i *internal.Instance) error {
		if err := i.GET(o.livePath, func(c internal.Context) error {
			return writeHealth(c, http.StatusOK, &HealthResponse{Status: StatusHealthy})
		}); err != nil {
			return err
		}

		return i.GET(o.readyPath, func(c internal.Context) error {
			res, err := runChecks(c, c.Logger(), checks, o.timeout)
			status := http.StatusOK
			if err != nil {
				status = http.StatusServiceUnavailable
			}
			return writeHealth(c, status, res)
		})
	}
}

// runChecks executes checks in parallel. It returns ErrHealthCheckFailed
// when at least one check failed.
func runChecks(ctx context.Context, log *slog.Logger, checks Checks, timeout time.Duration) (*HealthResponse, error) {
	if len(checks) == 0 {
		return &HealthResponse{Status: StatusHealthy}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(checks))
		failed  bool
	)

	// checks never fail the group; every check reports
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			result := CheckResult{Status: StatusHealthy}
			if err := check(ctx); err != nil {
				result = CheckResult{Status: StatusUnhealthy, Error: err.Error()}
				log.WarnContext(ctx, "health check failed",
					slog.String("check", name),
					slog.String("error", err.Error()),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			results[name] = result
			failed = failed || result.Status == StatusUnhealthy
			return nil
		})
	}
	_ = g.Wait()

	res := &HealthResponse{Status: StatusHealthy, Checks: results}
	if failed {
		res.Status = StatusUnhealthy
		return res, ErrHealthCheckFailed
	}
	return res, nil
}

func writeHealth(c internal.Context, status int, res *HealthResponse) error {
	if wantsJSON(c) {
		return c.JSON(status, res)
	}
	if res.Status == StatusHealthy {
		return c.String(status, "OK")
	}
	return c.String(status, http.StatusText(status))
}

func wantsJSON(c internal.Context) bool {
	if c.Query("format") == "json" {
		return true
	}
	return strings.Contains(c.Header("Accept"), "application/json")
}
