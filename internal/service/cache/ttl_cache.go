package cache

import (
	"context"
	"sync"
	"time"
)

type item struct {
	body    []byte
	expires time.Time
	seq     uint64
}

func (it item) expired(now time.Time) bool {
	return !it.expires.IsZero() && now.After(it.expires)
}

// TTLCache is the in-process backend. It holds at most max entries; when full,
// a write first drops expired entries and then the oldest write.
type TTLCache struct {
	mu    sync.Mutex
	items map[string]item
	max   int
	seq   uint64
	now   func() time.Time
}

// NewTTLCache returns a cache bounded to max entries; max <= 0 means unbounded.
func NewTTLCache(max int) *TTLCache {
	return &TTLCache{items: make(map[string]item), max: max, now: time.Now}
}

func (c *TTLCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if it.expired(c.now()) {
		delete(c.items, key)
		return nil, false, nil
	}
	return it.body, true, nil
}

// SetBytes stores value; ttl <= 0 keeps it until evicted.
func (c *TTLCache) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, exists := c.items[key]; !exists && c.max > 0 && len(c.items) >= c.max {
		c.evictLocked(now)
	}
	c.seq++
	it := item{body: value, seq: c.seq}
	if ttl > 0 {
		it.expires = now.Add(ttl)
	}
	c.items[key] = it
	return nil
}

func (c *TTLCache) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldestSeq uint64
	)
	for k, it := range c.items {
		if it.expired(now) {
			delete(c.items, k)
			continue
		}
		if oldestKey == "" || it.seq < oldestSeq {
			oldestKey, oldestSeq = k, it.seq
		}
	}
	if len(c.items) >= c.max && oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *TTLCache) Close() error { return nil }
