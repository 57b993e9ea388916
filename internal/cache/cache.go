// Package cache is an optional Redis read-through cache. A nil *Cache
// always calls the loader.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache wraps a Redis client with singleflight-coalesced loads.
type Cache struct {
	rdb    redis.UniversalClient
	prefix string
	sf     singleflight.Group
}

// New wraps an existing Redis client. Keys are namespaced with prefix.
func New(rdb redis.UniversalClient, prefix string) *Cache {
	return &Cache{rdb: rdb, prefix: prefix}
}

// Dial connects to Redis at addr and pings it.
func Dial(ctx context.Context, addr, password string, db int, prefix string) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", addr, err)
	}
	return New(rdb, prefix), nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *Cache) key(k string) string { return c.prefix + k }

// GetOrLoad returns the cached bytes for key, or calls load, stores its
// result for ttl and returns it. Concurrent misses share one load.
// Redis failures degrade to calling load.
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if c == nil {
		return load(ctx)
	}

	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, redis.Nil) {
		slog.Warn("cache read failed", "key", key, "error", err)
	}

	// Waiters share this load, so one caller going away must not fail it.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := c.sf.Do(key, func() (any, error) {
		b, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if err := c.rdb.Set(loadCtx, c.key(key), b, ttl).Err(); err != nil {
			slog.Warn("cache write failed", "key", key, "error", err)
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Delete invalidates key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil {
		return nil
	}
	return c.rdb.Del(ctx, c.key(key)).Err()
}

// Generation returns the counter stored at key, or 0 when it is unset.
// Callers fold it into their cache keys so that Bump retires every entry
// written under an older generation, including ones a slow load writes
// after the bump.
func (c *Cache) Generation(ctx context.Context, key string) (int64, error) {
	if c == nil {
		return 0, nil
	}
	n, err := c.rdb.Get(ctx, c.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Bump increments the counter at key.
func (c *Cache) Bump(ctx context.Context, key string) error {
	if c == nil {
		return nil
	}
	return c.rdb.Incr(ctx, c.key(key)).Err()
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// GetOrLoadJSON is GetOrLoad for a JSON-encoded value.
func GetOrLoadJSON[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return load(ctx)
	}

	b, err := c.GetOrLoad(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, fmt.Errorf("decoding cached %s: %w", key, err)
	}
	return out, nil
}
