package plugins

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/arbor/internal"
)

// DefaultCORSMaxAge is the default preflight cache duration.
const DefaultCORSMaxAge = 12 * time.Hour

// DefaultCORSConfig provides sensible defaults for CORS.
var DefaultCORSConfig = CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
	AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	MaxAge:       DefaultCORSMaxAge,
}

// CORSConfig configures the CORS plugin. The yaml tags match the "cors"
// section of the application config file.
type CORSConfig struct {
	// AllowOriginFunc overrides AllowOrigins when set.
	AllowOriginFunc func(origin string) bool `yaml:"-"`

	// AllowOrigins is a static list of allowed origins. "*" allows any
	// origin; the actual origin is echoed when credentials are allowed.
	AllowOrigins []string `yaml:"allow_origins"`

	AllowMethods  []string `yaml:"allow_methods"`
	AllowHeaders  []string `yaml:"allow_headers"`
	ExposeHeaders []string `yaml:"expose_headers"`

	AllowCredentials bool `yaml:"allow_credentials"`

	// MaxAge specifies how long preflight responses can be cached.
	MaxAge time.Duration `yaml:"max_age"`
}

// CORSOption configures CORSConfig.
type CORSOption func(*CORSConfig)

// WithAllowOrigins sets the allowed origins.
func WithAllowOrigins(origins ...string) CORSOption {
	return func(cfg *CORSConfig) {
		cfg.AllowOrigins = origins
	}
}

// WithAllowOriginFunc sets a dynamic origin validator.
func WithAllowOriginFunc(fn func(origin string) bool) CORSOption {
	return func(cfg *CORSConfig) {
		cfg.AllowOriginFunc = fn
	}
}

// WithAllowMethods sets the allowed HTTP methods.
func WithAllowMethods(methods ...string) CORSOption {
	return func(cfg *CORSConfig) {
		cfg.AllowMethods = methods
	}
}

// WithAllowHeaders sets the allowed request headers.
func WithAllowHeaders(headers ...string) CORSOption {
	return func(cfg *CORSConfig) {
		cfg.AllowHeaders = headers
	}
}

// WithExposeHeaders sets the headers exposed to the client.
func WithExposeHeaders(headers ...string) CORSOption {
	return func(cfg *CORSConfig) {
		cfg.ExposeHeaders = headers
	}
}

// WithAllowCredentials enables credentials support.
func WithAllowCredentials() CORSOption {
	return func(cfg *CORSConfig) {
		cfg.AllowCredentials = true
	}
}

// WithMaxAge sets the preflight cache duration.
func WithMaxAge(duration time.Duration) CORSOption {
	return func(cfg *CORSConfig) {
		cfg.MaxAge = duration
	}
}

// WithCORSConfig replaces the whole configuration. Empty fields keep their
// defaults.
func WithCORSConfig(c CORSConfig) CORSOption {
	return func(cfg *CORSConfig) {
		if c.AllowOriginFunc != nil {
			cfg.AllowOriginFunc = c.AllowOriginFunc
		}
		if len(c.AllowOrigins) > 0 {
			cfg.AllowOrigins = c.AllowOrigins
		}
		if len(c.AllowMethods) > 0 {
			cfg.AllowMethods = c.AllowMethods
		}
		if len(c.AllowHeaders) > 0 {
			cfg.AllowHeaders = c.AllowHeaders
		}
		if len(c.ExposeHeaders) > 0 {
			cfg.ExposeHeaders = c.ExposeHeaders
		}
		if c.MaxAge > 0 {
			cfg.MaxAge = c.MaxAge
		}
		cfg.AllowCredentials = cfg.AllowCredentials || c.AllowCredentials
	}
}

// CORS returns a plugin handling Cross-Origin Resource Sharing. Its onRequest
// hook adds the CORS headers to the reply and answers preflight (OPTIONS)
// requests with 204, skipping the rest of the lifecycle.
func CORS(opts ...CORSOption) internal.PluginFunc {
	cfg := &CORSConfig{
		AllowOrigins: DefaultCORSConfig.AllowOrigins,
		AllowMethods: DefaultCORSConfig.AllowMethods,
		AllowHeaders: DefaultCORSConfig.AllowHeaders,
		MaxAge:       DefaultCORSConfig.MaxAge,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))
	hasWildcard := slices.Contains(cfg.AllowOrigins, "*")

	return func(i *internal.Instance) error {
		return i.OnRequest(func(c internal.Context) error {
			origin := c.Header("Origin")
			if origin == "" || !isOriginAllowed(origin, cfg, hasWildcard) {
				// the browser blocks the response
				return nil
			}

			reply := c.Reply()
			vary := []string{"Origin"}

			if cfg.AllowCredentials || !hasWildcard {
				reply.Header("Access-Control-Allow-Origin", origin)
			} else {
				reply.Header("Access-Control-Allow-Origin", "*")
			}
			if cfg.AllowCredentials {
				reply.Header("Access-Control-Allow-Credentials", "true")
			}
			if exposeHeaders != "" {
				reply.Header("Access-Control-Expose-Headers", exposeHeaders)
			}

			preflight := c.Request().Method() == http.MethodOptions &&
				c.Header("Access-Control-Request-Method") != ""
			if !preflight {
				reply.Header("Vary", strings.Join(vary, ", "))
				return nil
			}

			vary = append(vary, "Access-Control-Request-Method", "Access-Control-Request-Headers")
			reply.Header("Vary", strings.Join(vary, ", "))
			reply.Header("Access-Control-Allow-Methods", allowMethods)
			reply.Header("Access-Control-Allow-Headers", allowHeaders)
			if cfg.MaxAge > 0 {
				reply.Header("Access-Control-Max-Age", maxAge)
			}
			return c.NoContent(http.StatusNoContent)
		})
	}
}

// isOriginAllowed checks if the given origin is allowed based on configuration.
func isOriginAllowed(origin string, cfg *CORSConfig, hasWildcard bool) bool {
	if cfg.AllowOriginFunc != nil {
		return cfg.AllowOriginFunc(origin)
	}
	if hasWildcard {
		return true
	}
	return slices.Contains(cfg.AllowOrigins, origin)
}
