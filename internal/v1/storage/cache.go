package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the write-through front of a Repository. A nil *redis.Client
// degrades it to a permanent-miss cache: every Get misses, every Put/Delete
// is a no-op success, so single-instance deployments run entirely off the
// object store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache wraps client (nil permitted) with a fixed per-entry TTL.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached value, or (nil, false, nil) on a clean miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.client == nil {
		return nil, false, nil
	}
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		slog.Warn("storage cache: get failed, falling through to object store", "key", key, "error", err)
		return nil, false, nil
	}
	return val, true, nil
}

// Put populates the cache. Failures are logged, not surfaced: the Storage
// Layer treats cache writes as best-effort (spec §4.5: the authoritative
// store is the object store).
func (c *Cache) Put(ctx context.Context, key string, val []byte) {
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		slog.Warn("storage cache: put failed", "key", key, "error", err)
	}
}

// Invalidate evicts key, used after a write error so the next reader
// re-reads the authoritative object store instead of a stale cache entry.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		slog.Warn("storage cache: invalidate failed", "key", key, "error", err)
	}
}
