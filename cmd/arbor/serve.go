package main

import (
	"context"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/arbor"
	"github.com/dmitrymomot/arbor/plugins"
)

const (
	defaultAddr           = ":8080"
	defaultCacheKeyPrefix = "arbor:cache"
)

type corsSettings = plugins.CORSConfig

type metricsSettings struct {
	Namespace string `yaml:"namespace"`
	Path      string `yaml:"path"`
}

type tracingSettings struct {
	TracerName string `yaml:"tracer_name"`
}

type healthSettings struct {
	Prefix  string        `yaml:"prefix"`
	Timeout time.Duration `yaml:"timeout"`
}

// cacheSettings selects the cache store, "memory" (default) or "redis".
// KeyPrefix namespaces redis keys.
type cacheSettings struct {
	Store      string        `yaml:"store"`
	KeyPrefix  string        `yaml:"key_prefix"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

type redisSettings struct {
	URL string `yaml:"url"`
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if cfg.Addr == "" {
				cfg.Addr = defaultAddr
			}

			app, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return app.Listen(cfg.Addr, cfg.RunOptions()...)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address, overrides the config file")
	return cmd
}

func routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the route table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			app, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := app.Ready(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = app.Close(context.WithoutCancel(cmd.Context())) }()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METHOD\tURL\tVERSION\tHOST")
			for _, r := range app.Routes() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Method, r.URL, orDash(r.Version), orDash(r.Host))
			}
			return w.Flush()
		},
	}
}

func loadConfig(cmd *cobra.Command) (arbor.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return arbor.Config{}, nil
	}
	return arbor.LoadConfig(path)
}

// buildApp assembles the application. Plugins adding global hooks are
// registered before any route they should cover; health and metrics
// routes come before the cache so probes are never served from it.
func buildApp(ctx context.Context, cfg arbor.Config) (*arbor.App, error) {
	if cfg.Log.Level == "" && cfg.Log.Format == "" {
		cfg.Log.Level = "info"
	}
	app := arbor.New(arbor.WithConfig(cfg))
	global := arbor.WithoutEncapsulation()

	var cors corsSettings
	if found, err := cfg.PluginConfig("cors", &cors); err != nil {
		return nil, err
	} else if found {
		if err := app.Register(plugins.CORS(plugins.WithCORSConfig(cors)), global); err != nil {
			return nil, err
		}
	}

	var metrics metricsSettings
	if found, err := cfg.PluginConfig("metrics", &metrics); err != nil {
		return nil, err
	} else if found {
		opts := []plugins.MetricsOption{plugins.WithRegistry(prometheus.NewRegistry())}
		if metrics.Namespace != "" {
			opts = append(opts, plugins.WithNamespace(metrics.Namespace))
		}
		if metrics.Path != "" {
			opts = append(opts, plugins.WithMetricsPath(metrics.Path))
		}
		if err := app.Register(plugins.Metrics(opts...), global); err != nil {
			return nil, err
		}
	}

	var tracing tracingSettings
	if found, err := cfg.PluginConfig("tracing", &tracing); err != nil {
		return nil, err
	} else if found {
		var opts []plugins.TracingOption
		if tracing.TracerName != "" {
			opts = append(opts, plugins.WithTracerName(tracing.TracerName))
		}
		if err := app.Register(plugins.Tracing(opts...), global); err != nil {
			return nil, err
		}
	}

	var redisCfg redisSettings
	if _, err := cfg.PluginConfig("redis", &redisCfg); err != nil {
		return nil, err
	}
	checks := plugins.Checks{}
	var client redis.UniversalClient
	if redisCfg.URL != "" {
		var err error
		if client, err = plugins.OpenRedis(ctx, redisCfg.URL); err != nil {
			return nil, err
		}
		if err := app.OnClose(func(context.Context) error { return client.Close() }); err != nil {
			return nil, err
		}
		checks["redis"] = plugins.RedisCheck(client)
	}

	var health healthSettings
	if found, err := cfg.PluginConfig("health", &health); err != nil {
		return nil, err
	} else if found {
		if health.Prefix == "" {
			health.Prefix = "/health"
		}
		err := app.Register(plugins.Health(checks, plugins.WithHealthTimeout(health.Timeout)),
			arbor.WithPrefix(health.Prefix), arbor.WithName("health"))
		if err != nil {
			return nil, err
		}
	}

	var cache cacheSettings
	if found, err := cfg.PluginConfig("cache", &cache); err != nil {
		return nil, err
	} else if found {
		store, err := cacheStore(app, cache, client)
		if err != nil {
			return nil, err
		}
		var opts []plugins.CacheOption
		if cache.TTL > 0 {
			opts = append(opts, plugins.WithCacheTTL(cache.TTL))
		}
		if err := app.Register(plugins.Cache(store, opts...), global); err != nil {
			return nil, err
		}
	}

	if err := app.GET("/", func(c arbor.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"service": "arbor", "version": version})
	}); err != nil {
		return nil, err
	}
	return app, nil
}

func cacheStore(app *arbor.App, cfg cacheSettings, client redis.UniversalClient) (plugins.CacheStore, error) {
	switch cfg.Store {
	case "", "memory":
		store := plugins.NewMemoryStore(plugins.WithMaxEntries(cfg.MaxEntries))
		if err := app.OnClose(func(context.Context) error { return store.Close() }); err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("cache store redis: %w", plugins.ErrEmptyRedisURL)
		}
		if cfg.KeyPrefix == "" {
			cfg.KeyPrefix = defaultCacheKeyPrefix
		}
		return plugins.NewRedisStore(client, cfg.KeyPrefix), nil
	}
	return nil, fmt.Errorf("cache store %q: unknown store", cfg.Store)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
