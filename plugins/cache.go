package plugins

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/arbor/internal"
)

// HeaderXCache reports whether a reply was served from the cache.
const HeaderXCache = "X-Cache"

// DefaultCacheTTL is the lifetime of cached replies.
const DefaultCacheTTL = 5 * time.Minute

type cacheKeyValue struct{}

type cacheOptions struct {
	keyFunc func(c internal.Context) string
	skip    func(c internal.Context) bool
	headers []string
	ttl     time.Duration
}

// CacheOption configures the Cache plugin.
type CacheOption func(*cacheOptions)

// WithCacheTTL sets the lifetime of cached replies. Zero keeps them until
// the store evicts them.
func WithCacheTTL(d time.Duration) CacheOption {
	return func(o *cacheOptions) {
		o.ttl = d
	}
}

// WithCacheKey replaces the cache key, host plus request URI by default.
func WithCacheKey(fn func(c internal.Context) string) CacheOption {
	return func(o *cacheOptions) {
		if fn != nil {
			o.keyFunc = fn
		}
	}
}

// WithCacheSkip bypasses the cache for requests where fn returns true.
func WithCacheSkip(fn func(c internal.Context) bool) CacheOption {
	return func(o *cacheOptions) {
		o.skip = fn
	}
}

// WithCachedHeaders sets the reply headers stored with the body.
// Content-Type is always stored.
func WithCachedHeaders(names ...string) CacheOption {
	return func(o *cacheOptions) {
		o.headers = append(o.headers, names...)
	}
}

func defaultCacheKey(c internal.Context) string {
	return c.Request().Raw().Host + c.Request().URL()
}

// Cache returns a plugin serving GET and HEAD replies from store.
//
// The onRequest hook looks the request up and sends the stored reply on a
// hit, which skips parsing, validation and the handler. On a miss the onSend
// hook stores 200 replies with a string or []byte body. Streams, errors and
// other status codes are never cached. Concurrent lookups of the same key
// share one store round trip.
func Cache(store CacheStore, opts ...CacheOption) internal.PluginFunc {
	o := cacheOptions{
		keyFunc: defaultCacheKey,
		headers: []string{"Content-Type"},
		ttl:     DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var lookups singleflight.Group

	return func(i *internal.Instance) error {
		if store == nil {
			return ErrNilStore
		}

		if err := i.OnRequest(func(c internal.Context) error {
			if m := c.Request().Method(); m != http.MethodGet && m != http.MethodHead {
				return nil
			}
			if o.skip != nil && o.skip(c) {
				return nil
			}

			key := o.keyFunc(c)
			v, err, _ := lookups.Do(key, func() (any, error) {
				return store.Get(context.WithoutCancel(c), key)
			})
			if err != nil {
				if !errors.Is(err, ErrCacheMiss) {
					c.Logger().Warn("cache lookup failed", slog.String("key", key), slog.Any("error", err))
				}
				c.Set(cacheKeyValue{}, key)
				return nil
			}

			res := v.(*CachedResponse)
			c.Reply().
				Headers(res.Header).
				Header(HeaderXCache, "HIT").
				Code(res.StatusCode)
			return c.Send(res.Body)
		}); err != nil {
			return err
		}

		return i.OnSend(func(c internal.Context, payload any) (any, error) {
			key, ok := c.Get(cacheKeyValue{}).(string)
			if !ok {
				return nil, nil
			}
			reply := c.Reply()
			if reply.StatusCode() != http.StatusOK {
				return nil, nil
			}

			var body []byte
			switch p := payload.(type) {
			case []byte:
				body = p
			case string:
				body = []byte(p)
			default:
				return nil, nil
			}

			res := &CachedResponse{
				Header:     make(map[string]string, len(o.headers)),
				Body:       body,
				StatusCode: http.StatusOK,
			}
			for _, name := range o.headers {
				if v := reply.GetHeader(name); v != "" {
					res.Header[name] = v
				}
			}

			if err := store.Set(context.WithoutCancel(c), key, res, o.ttl); err != nil {
				c.Logger().Warn("cache store failed", slog.String("key", key), slog.Any("error", err))
				return nil, nil
			}
			reply.Header(HeaderXCache, "MISS")
			return nil, nil
		})
	}
}
