package cachefakes

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-core/cache"
)

var _ cache.KVCache = (*FakeKVCache)(nil)

type fakeEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// FakeKVCache is an in-memory cache.KVCache for tests, with optional
// failure injection and a controllable clock.
type FakeKVCache struct {
	lock    sync.RWMutex
	entries map[string]fakeEntry

	NowFunc func() time.Time
	GetErr  error
	SetErr  error
}

func NewFakeKVCache() *FakeKVCache {
	return &FakeKVCache{
		entries: make(map[string]fakeEntry),
		NowFunc: time.Now,
	}
}

func (c *FakeKVCache) Get(_ context.Context, key string) (string, error) {
	if c.GetErr != nil {
		return "", c.GetErr
	}

	c.lock.RLock()
	defer c.lock.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.expired(entry) {
		return "", cache.ErrCacheMiss
	}
	return entry.value, nil
}

func (c *FakeKVCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if c.SetErr != nil {
		return c.SetErr
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	entry := fakeEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.NowFunc().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

func (c *FakeKVCache) Delete(_ context.Context, keys ...string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func (c *FakeKVCache) MGet(_ context.Context, keys ...string) ([]*string, error) {
	if c.GetErr != nil {
		return nil, c.GetErr
	}

	c.lock.RLock()
	defer c.lock.RUnlock()

	result := make([]*string, len(keys))
	for i, key := range keys {
		if entry, ok := c.entries[key]; ok && !c.expired(entry) {
			value := entry.value
			result[i] = &value
		}
	}
	return result, nil
}

func (c *FakeKVCache) DeletePattern(_ context.Context, pattern string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	for key := range c.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.entries, key)
		}
	}
	return nil
}

// Len returns the number of live entries.
func (c *FakeKVCache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	count := 0
	for _, entry := range c.entries {
		if !c.expired(entry) {
			count++
		}
	}
	return count
}

func (c *FakeKVCache) expired(entry fakeEntry) bool {
	return !entry.expiresAt.IsZero() && !c.NowFunc().Before(entry.expiresAt)
}
