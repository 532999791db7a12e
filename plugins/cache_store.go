package plugins

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedResponse is a reply captured by the Cache plugin.
type CachedResponse struct {
	Header     map[string]string `json:"header,omitempty"`
	Body       []byte            `json:"body"`
	StatusCode int               `json:"status"`
}

// CacheStore keeps cached replies. Get returns ErrCacheMiss for absent or
// expired keys. A zero ttl means the entry never expires.
type CacheStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, error)
	Set(ctx context.Context, key string, res *CachedResponse, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	expiresAt time.Time
	res       *CachedResponse
	key       string
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process LRU CacheStore with per-entry TTL.
// Expired entries are dropped lazily on read and by a background janitor.
type MemoryStore struct {
	items    map[string]*list.Element
	eviction *list.List
	done     chan struct{}
	opts     memoryOptions
	mu       sync.Mutex
	closed   bool
}

type memoryOptions struct {
	cleanupInterval time.Duration
	maxEntries      int
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*memoryOptions)

// WithMaxEntries bounds the store; the least recently used entry is evicted
// first. Zero means unlimited.
func WithMaxEntries(n int) MemoryOption {
	return func(o *memoryOptions) {
		o.maxEntries = n
	}
}

// WithCleanupInterval sets how often the janitor drops expired entries.
// Zero disables the janitor.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(o *memoryOptions) {
		o.cleanupInterval = d
	}
}

// NewMemoryStore creates an in-memory store. Call Close to stop the janitor.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	o := memoryOptions{cleanupInterval: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}

	m := &MemoryStore{
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		done:     make(chan struct{}),
		opts:     o,
	}
	if o.cleanupInterval > 0 {
		go m.janitor()
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, key string) (*CachedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	e := elem.Value.(*memoryEntry)
	if e.expired(time.Now()) {
		m.remove(elem)
		return nil, ErrCacheMiss
	}
	m.eviction.MoveToFront(elem)
	return e.res, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, res *CachedResponse, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if elem, ok := m.items[key]; ok {
		e := elem.Value.(*memoryEntry)
		e.res = res
		e.expiresAt = expiresAt
		m.eviction.MoveToFront(elem)
		return nil
	}

	if m.opts.maxEntries > 0 && len(m.items) >= m.opts.maxEntries {
		if oldest := m.eviction.Back(); oldest != nil {
			m.remove(oldest)
		}
	}

	m.items[key] = m.eviction.PushFront(&memoryEntry{key: key, res: res, expiresAt: expiresAt})
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if elem, ok := m.items[key]; ok {
		m.remove(elem)
	}
	return nil
}

// Len returns the number of entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close stops the janitor. It is safe to call more than once.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *MemoryStore) janitor() {
	ticker := time.NewTicker(m.opts.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.deleteExpired()
		}
	}
}

func (m *MemoryStore) deleteExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for elem := m.eviction.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*memoryEntry).expired(now) {
			m.remove(elem)
		}
		elem = prev
	}
}

func (m *MemoryStore) remove(elem *list.Element) {
	m.eviction.Remove(elem)
	delete(m.items, elem.Value.(*memoryEntry).key)
}

// RedisStore keeps cached replies in Redis as JSON documents.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store on client. Keys are written as
// "<prefix>:<key>"; an empty prefix writes bare keys. The client is owned
// by the caller.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Get(ctx context.Context, key string) (*CachedResponse, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var res CachedResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, res *CachedResponse, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	// redis treats 0 as no expiration
	return r.client.Set(ctx, r.key(key), data, max(ttl, 0)).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisStore) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}
