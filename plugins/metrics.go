package plugins

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/arbor/internal"
)

// notFoundRoute labels requests served by a not-found handler, keeping
// unmatched paths out of the label set.
const notFoundRoute = "NOT_FOUND"

type inFlightValue struct{}

// MetricsConfig configures the Prometheus metrics plugin.
type MetricsConfig struct {
	// Registry receives the collectors. Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Gatherer is served on Path. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Namespace is the metrics namespace (default: "arbor").
	Namespace string
	Subsystem string

	// Path serves the gathered metrics. Empty disables the endpoint.
	Path string

	// Buckets are the latency histogram buckets. Default: prometheus.DefBuckets.
	Buckets []float64
}

// MetricsOption configures the Prometheus metrics plugin.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the latency histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry registers and gathers the metrics on registry.
func WithRegistry(registry *prometheus.Registry) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
		c.Gatherer = registry
	}
}

// WithMetricsPath sets the route serving the metrics. Empty disables it.
func WithMetricsPath(path string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Path = path
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Registry:  prometheus.DefaultRegisterer,
		Gatherer:  prometheus.DefaultGatherer,
		Namespace: "arbor",
		Path:      "/metrics",
		Buckets:   prometheus.DefBuckets,
	}
}

type requestMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	aborted  *prometheus.CounterVec
	timeouts *prometheus.CounterVec
}

func newRequestMetrics(cfg MetricsConfig) *requestMetrics {
	factory := promauto.With(cfg.Registry)

	return &requestMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of completed requests",
			ConstLabels: cfg.ConstLabels,
		}, []string{"method", "route", "status"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Time from receiving the request to writing the reply",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"method", "route"}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "requests_in_flight",
			Help:        "Number of requests being dispatched",
			ConstLabels: cfg.ConstLabels,
		}),

		aborted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "requests_aborted_total",
			Help:        "Total number of requests abandoned by the client",
			ConstLabels: cfg.ConstLabels,
		}, []string{"method", "route"}),

		timeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "request_timeouts_total",
			Help:        "Total number of requests exceeding the connection timeout",
			ConstLabels: cfg.ConstLabels,
		}, []string{"method", "route"}),
	}
}

// Metrics returns a plugin collecting Prometheus request metrics:
//
//   - <ns>_requests_total: completed requests by method, route and status
//   - <ns>_request_duration_seconds: latency histogram by method and route
//   - <ns>_requests_in_flight: requests being dispatched
//   - <ns>_requests_aborted_total: requests the client went away from
//   - <ns>_request_timeouts_total: requests exceeding the connection timeout
//
// The route label is the route pattern, never the raw path. The collectors
// are registered when Metrics is called; like promauto it panics when they
// are already registered on the same registry.
func Metrics(opts ...MetricsOption) internal.PluginFunc {
	cfg := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	m := newRequestMetrics(cfg)

	return func(i *internal.Instance) error {
		// an earlier onRequest hook may answer before this one runs
		if err := i.OnRequest(func(c internal.Context) error {
			m.inFlight.Inc()
			c.Set(inFlightValue{}, true)
			return nil
		}); err != nil {
			return err
		}

		if err := i.OnResponse(func(c internal.Context) error {
			leave(c, m.inFlight)
			method, route := routeLabels(c)
			status := strconv.Itoa(c.Reply().StatusCode())
			m.requests.WithLabelValues(method, route, status).Inc()
			m.duration.WithLabelValues(method, route).Observe(c.Reply().ElapsedTime().Seconds())
			return nil
		}); err != nil {
			return err
		}

		// an aborted request never reaches onResponse
		if err := i.OnRequestAbort(func(c internal.Context) error {
			leave(c, m.inFlight)
			m.aborted.WithLabelValues(routeLabels(c)).Inc()
			return nil
		}); err != nil {
			return err
		}

		if err := i.OnTimeout(func(c internal.Context) error {
			m.timeouts.WithLabelValues(routeLabels(c)).Inc()
			return nil
		}); err != nil {
			return err
		}

		if cfg.Path == "" {
			return nil
		}
		handler := promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})
		return i.GET(cfg.Path, func(c internal.Context) error {
			c.Reply().Hijack()
			handler.ServeHTTP(c.Reply().Raw(), c.Request().Raw())
			return nil
		})
	}
}

func leave(c internal.Context, gauge prometheus.Gauge) {
	if tracked, _ := c.Get(inFlightValue{}).(bool); tracked {
		gauge.Dec()
	}
}

func routeLabels(c internal.Context) (method, route string) {
	req := c.Request()
	if req.Is404() {
		return req.Method(), notFoundRoute
	}
	return req.Method(), req.RouteURL()
}
