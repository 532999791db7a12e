package plugins

import "errors"

var (
	// ErrCacheMiss is returned by a CacheStore when the key is absent or expired.
	ErrCacheMiss = errors.New("plugins: cache miss")

	// ErrStoreClosed is returned by a closed MemoryStore.
	ErrStoreClosed = errors.New("plugins: cache store is closed")

	// ErrNilStore is returned when Cache is registered without a store.
	ErrNilStore = errors.New("plugins: nil cache store")

	// ErrHealthCheckFailed is returned when one or more readiness checks fail.
	ErrHealthCheckFailed = errors.New("plugins: health check failed")

	ErrEmptyRedisURL      = errors.New("plugins: empty redis connection URL")
	ErrInvalidRedisURL    = errors.New("plugins: failed to parse redis connection URL")
	ErrRedisConnectFailed = errors.New("plugins: failed to establish redis connection")
	ErrRedisUnavailable   = errors.New("plugins: redis is unavailable")
)
