// Package plugins provides ready-made plugins for arbor applications.
//
// Every plugin is an arbor.PluginFunc. Registered normally it is encapsulated
// like any other plugin and only affects the routes declared inside its
// scope. Register it with arbor.WithoutEncapsulation to apply it to the
// registering instance and everything registered after it:
//
//	app := arbor.New(arbor.WithLogger(log))
//	app.Register(plugins.CORS(plugins.WithAllowOrigins("https://example.com")),
//	    arbor.WithoutEncapsulation())
//	app.Register(plugins.Metrics(), arbor.WithoutEncapsulation())
//
// Hooks are snapshotted onto routes when the routes are declared, so
// register application-wide plugins before the routes they should cover.
//
// # CORS
//
// CORS adds Cross-Origin Resource Sharing headers from an onRequest hook and
// answers preflight requests with 204 before any handler runs. Preflight
// requests for paths without an OPTIONS route are answered through the
// not-found route, which carries the same hooks.
//
// # Response cache
//
// Cache serves GET replies from a [CacheStore]. Lookups happen in onRequest,
// successful replies are stored from onSend. [MemoryStore] keeps entries in
// an LRU with TTL, [RedisStore] shares them between processes.
//
//	store := plugins.NewMemoryStore(plugins.WithMaxEntries(1000))
//	app.Register(plugins.Cache(store, plugins.WithCacheTTL(time.Minute)),
//	    arbor.WithPrefix("/catalog"))
//
// # Metrics
//
// Metrics records Prometheus request counters and latency histograms from
// onRequest and onResponse hooks and serves the registry on /metrics.
//
// # Tracing
//
// Tracing starts an OpenTelemetry server span per request. The span is ended
// in onResponse, or in onRequestAbort when the client goes away. Handlers
// reach it with [SpanFromContext].
//
// # Health
//
// Health serves liveness and readiness probes. Readiness runs named checks in
// parallel, [RedisCheck] adapts a Redis client.
//
//	app.Register(plugins.Health(plugins.Checks{
//	    "redis": plugins.RedisCheck(client),
//	}), arbor.WithPrefix("/health"))
package plugins
