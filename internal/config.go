package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/arbor/pkg/logger"
)

// Config is the file form of the application options.
//
//	addr: ":8080"
//	shutdown_timeout: 20s
//	body_limit: 2097152
//	request_id_header: X-Request-ID
//	connection_timeout: 10s
//	ignore_trailing_slash: true
//	log:
//	  level: debug
//	  format: text
type Config struct {
	Addr                  string        `yaml:"addr"`
	ShutdownTimeout       time.Duration `yaml:"shutdown_timeout"`
	BodyLimit             int64         `yaml:"body_limit"`
	RequestIDHeader       string        `yaml:"request_id_header"`
	ConnectionTimeout     time.Duration `yaml:"connection_timeout"`
	IgnoreTrailingSlash   bool          `yaml:"ignore_trailing_slash"`
	TrustProxy            bool          `yaml:"trust_proxy"`
	DisableRequestLogging bool          `yaml:"disable_request_logging"`

	Log logger.Config `yaml:"log"`

	// Plugins holds free-form plugin settings, keyed by plugin name.
	Plugins map[string]yaml.Node `yaml:"plugins"`
}

// LoadConfig reads a YAML config file. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	defer f.Close()
	return ParseConfig(f)
}

// ParseConfig decodes a YAML config. An empty document yields the zero Config.
func ParseConfig(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	var cfg Config
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// PluginConfig decodes the settings of the named plugin into out.
// It reports false when the section is absent.
func (c Config) PluginConfig(name string, out any) (bool, error) {
	node, ok := c.Plugins[name]
	if !ok {
		return false, nil
	}
	if err := node.Decode(out); err != nil {
		return true, fmt.Errorf("plugin %s config: %w", name, err)
	}
	return true, nil
}

// Options translates the config into application options. A logger is only
// built when the log section sets a level, format or Sentry DSN.
func (c Config) Options() []Option {
	opts := []Option{
		WithBodyLimit(c.BodyLimit),
		WithRequestIDHeader(c.RequestIDHeader),
		WithConnectionTimeout(c.ConnectionTimeout),
	}
	if c.IgnoreTrailingSlash {
		opts = append(opts, WithIgnoreTrailingSlash())
	}
	if c.TrustProxy {
		opts = append(opts, WithTrustProxy())
	}
	if c.DisableRequestLogging {
		opts = append(opts, WithDisableRequestLogging())
	}
	if c.Log.Level != "" || c.Log.Format != "" || c.Log.Sentry.DSN != "" {
		opts = append(opts, WithLogger(logger.New(c.Log, LogRequestID())))
	}
	return opts
}

// RunOptions translates the server section of the config into run options.
func (c Config) RunOptions() []RunOption {
	return []RunOption{ShutdownTimeout(c.ShutdownTimeout)}
}

// WithConfig applies every option derived from cfg.
func WithConfig(cfg Config) Option {
	return func(a *App) {
		for _, opt := range cfg.Options() {
			opt(a)
		}
	}
}

// LogRequestID returns a log extractor adding the request id carried by ctx.
// Any Context handed to hooks and handlers carries one.
func LogRequestID() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		id := RequestID(ctx)
		if id == "" {
			return slog.Attr{}, false
		}
		return slog.String("reqId", id), true
	}
}
