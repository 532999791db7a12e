package plugins

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOption configures OpenRedis.
type RedisOption func(*redisOptions)

type redisOptions struct {
	poolSize      int
	retryAttempts int
	retryInterval time.Duration
	dialTimeout   time.Duration
}

// WithRedisPoolSize sets the maximum number of pooled connections.
// Default: 10
func WithRedisPoolSize(n int) RedisOption {
	return func(o *redisOptions) {
		o.poolSize = n
	}
}

// WithRedisRetry configures the connection attempts. The wait between
// attempts grows linearly with interval.
// Default: 3 attempts, 1 second.
func WithRedisRetry(attempts int, interval time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.retryAttempts = attempts
		o.retryInterval = interval
	}
}

// WithRedisDialTimeout sets the timeout for establishing connections.
// Default: 5 seconds
func WithRedisDialTimeout(d time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.dialTimeout = d
	}
}

// OpenRedis connects to the redis:// or rediss:// url and pings it,
// retrying as configured. The caller closes the client, typically from an
// onClose hook.
func OpenRedis(ctx context.Context, url string, opts ...RedisOption) (redis.UniversalClient, error) {
	if url == "" {
		return nil, ErrEmptyRedisURL
	}
	if !strings.HasPrefix(url, "redis://") && !strings.HasPrefix(url, "rediss://") {
		return nil, ErrInvalidRedisURL
	}

	o := redisOptions{
		poolSize:      10,
		retryAttempts: 3,
		retryInterval: time.Second,
		dialTimeout:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Join(ErrInvalidRedisURL, err)
	}
	redisOpts.PoolSize = o.poolSize
	redisOpts.DialTimeout = o.dialTimeout

	var lastErr error
	for attempt := range max(o.retryAttempts, 1) {
		client := redis.NewClient(redisOpts)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisConnectFailed, ctx.Err())
		case <-time.After(time.Duration(attempt+1) * o.retryInterval):
		}
	}
	return nil, errors.Join(ErrRedisConnectFailed, lastErr)
}

// RedisCheck returns a readiness check pinging client.
func RedisCheck(client redis.UniversalClient) CheckFunc {
	return func(ctx context.Context) error {
		if client == nil {
			return ErrRedisUnavailable
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrRedisUnavailable, err)
		}
		return nil
	}
}
