package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"
	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
)

// Cache holds encoded reports for a limited time.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheKey returns the cache key of a report: REPORT_<db>_<key>_<name>.
func CacheKey(db, key, name string) string {
	return "REPORT_" + db + "_" + key + "_" + name
}

// NopCache caches nothing.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (NopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NopCache) Delete(context.Context, string) error { return nil }

type redisCache struct {
	client redis.UniversalClient
}

// NewRedisCache returns a cache backed by redis. Values are stored snappy
// compressed.
func NewRedisCache(client redis.UniversalClient) Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry %s: %w", key, err)
	}

	data, err := snappy.Decode(nil, val)
	if err != nil {
		return nil, false, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}

	return data, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, snappy.Encode(nil, value), ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

type lruEntry struct {
	value   []byte
	expires time.Time
}

type lruCache struct {
	entries *lru.Cache
	now     func() time.Time
}

// NewLRUCache returns an in-process cache holding at most size entries.
func NewLRUCache(size int) (Cache, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}

	return &lruCache{entries: entries, now: time.Now}, nil
}

func (c *lruCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}

	entry := v.(lruEntry)
	if !entry.expires.IsZero() && !c.now().Before(entry.expires) {
		c.entries.Remove(key)

		return nil, false, nil
	}

	return entry.value, true, nil
}

func (c *lruCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := lruEntry{value: value}
	if ttl > 0 {
		entry.expires = c.now().Add(ttl)
	}

	c.entries.Add(key, entry)

	return nil
}

func (c *lruCache) Delete(_ context.Context, key string) error {
	c.entries.Remove(key)

	return nil
}
