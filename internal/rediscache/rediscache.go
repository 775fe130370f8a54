// Package rediscache adapts a Redis client to the cache substrate
// capability.
package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-auth-core/cache"
)

// KVCache implements cache.KVCache over go-redis.
type KVCache struct {
	client redis.UniversalClient
}

var _ cache.KVCache = (*KVCache)(nil)

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, addr, password string, db int) (*KVCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "[rediscache.Open] ping")
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient) *KVCache {
	return &KVCache{client: client}
}

// Close releases the underlying connection pool.
func (c *KVCache) Close() error {
	return c.client.Close()
}

func (c *KVCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", cache.ErrCacheMiss
	}
	if err != nil {
		return "", errors.Wrap(err, "[KVCache.Get] GET")
	}
	return value, nil
}

func (c *KVCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.Wrap(c.client.Set(ctx, key, value, ttl).Err(), "[KVCache.Set] SET")
}

func (c *KVCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(c.client.Del(ctx, keys...).Err(), "[KVCache.Delete] DEL")
}

func (c *KVCache) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raw, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[KVCache.MGet] MGET")
	}

	values := make([]*string, len(raw))
	for i, v := range raw {
		if s, ok := v.(string); ok {
			values[i] = &s
		}
	}
	return values, nil
}

// DeletePattern scans for matching keys and deletes them in batches. SCAN is
// used instead of KEYS so large keyspaces do not block the server.
func (c *KVCache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return errors.Wrap(err, "[KVCache.DeletePattern] DEL batch")
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "[KVCache.DeletePattern] SCAN")
	}
	if len(batch) > 0 {
		return errors.Wrap(c.client.Del(ctx, batch...).Err(), "[KVCache.DeletePattern] DEL tail")
	}
	return nil
}
