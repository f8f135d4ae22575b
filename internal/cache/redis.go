package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a JSON-over-redis store. It satisfies embedding.Cache: lookups
// that fail for any reason are reported as misses.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, key string) ([]float32, bool) {
	var vec []float32
	if err := c.getJSON(ctx, key, &vec); err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Debug("embedding cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return vec, len(vec) > 0
}

func (c *Cache) Set(ctx context.Context, key string, vec []float32) {
	if err := c.setJSON(ctx, key, vec); err != nil {
		slog.Warn("embedding cache write failed", "key", key, "error", err)
	}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) getJSON(ctx context.Context, key string, dest any) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	return json.Unmarshal(val, dest)
}

func (c *Cache) setJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
