// Package cache memoizes year, agency and count lookups against data
// portals. Values are stored as JSON so both backends behave the same.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Cache is a key/value store with a fixed TTL.
type Cache interface {
	// Get decodes the value stored under key into dst. found is false on a
	// miss.
	Get(ctx context.Context, key string, dst any) (found bool, err error)
	Set(ctx context.Context, key string, value any) error
}

// Memory is an in-process Cache.
type Memory struct {
	c *gocache.Cache
}

// NewMemory creates an in-process cache. A ttl <= 0 never expires entries.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Memory{c: gocache.New(ttl, 10*time.Minute)}
}

func (m *Memory) Get(_ context.Context, key string, dst any) (bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(v.([]byte), dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (m *Memory) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.c.SetDefault(key, data)
	return nil
}

// Redis is a Cache shared between processes.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis wraps client. Keys are namespaced with prefix.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Remember returns the cached value for key, or computes it with fn and
// stores it. Cache errors are not fatal: fn's result is returned and the
// error is reported through onErr when it is non-nil.
func Remember[T any](ctx context.Context, c Cache, key string, onErr func(error), fn func() (T, error)) (T, error) {
	var v T
	if c != nil {
		found, err := c.Get(ctx, key, &v)
		if err != nil && onErr != nil {
			onErr(err)
		}
		if found {
			return v, nil
		}
	}

	v, err := fn()
	if err != nil {
		return v, err
	}
	if c != nil {
		if err := c.Set(ctx, key, v); err != nil && onErr != nil {
			onErr(err)
		}
	}
	return v, nil
}
