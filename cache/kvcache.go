// Package cache holds the cache-tier session index: the KVCache capability,
// the tagged entry envelope used for reference indirection, and the session
// cache manager with its secondary indexes and permission staleness control.
package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// KVCache is the cache substrate capability. The substrate offers only
// plain get/set/delete semantics; anything richer (indexes, indirection)
// is layered on top with read-modify-write operations.
type KVCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// MGet returns one entry per key; nil marks a miss.
	MGet(ctx context.Context, keys ...string) ([]*string, error)
	DeletePattern(ctx context.Context, pattern string) error
}
