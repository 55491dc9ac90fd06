// Package cache provides a generic TTL cache
package cache

import (
	"sync"
	"time"
)

// item wraps a cached value with its expiration time
type item[T any] struct {
	value     T
	expiresAt time.Time
}

func (i item[T]) expired(now time.Time) bool {
	return !now.Before(i.expiresAt)
}

type options struct {
	now             func() time.Time
	cleanupInterval time.Duration
}

// Option configures a Cache.
type Option func(*options)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCleanupInterval starts a background goroutine that removes expired
// items every d. Call Close to stop it.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanupInterval = d }
}

// Cache is a generic thread-safe cache with TTL expiration
type Cache[T any] struct {
	items map[string]item[T]
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// New creates a cache with the specified default TTL
func New[T any](ttl time.Duration, opts ...Option) *Cache[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache[T]{
		items: make(map[string]item[T]),
		ttl:   ttl,
		now:   o.now,
		stop:  make(chan struct{}),
	}
	if o.cleanupInterval > 0 {
		go c.cleanup(o.cleanupInterval)
	}
	return c
}

// TTL returns the default TTL.
func (c *Cache[T]) TTL() time.Duration {
	return c.ttl
}

// Get retrieves a value, returning (value, true) if found and not expired
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || item.expired(c.now()) {
		var zero T
		return zero, false
	}
	return item.value, true
}

// GetStale retrieves a value even if it has expired, as long as it has not
// been swept yet.
func (c *Cache[T]) GetStale(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	return item.value, exists
}

// Set stores a value with the cache's TTL
func (c *Cache[T]) Set(key string, value T) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with an explicit TTL. A zero or negative TTL
// stores an entry that is already expired.
func (c *Cache[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item[T]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// ReplaceAll swaps the whole content for items, all expiring after ttl.
// Readers see either the old or the new set, never a mix.
func (c *Cache[T]) ReplaceAll(items map[string]T, ttl time.Duration) {
	expiresAt := c.now().Add(ttl)
	next := make(map[string]item[T], len(items))
	for k, v := range items {
		next[k] = item[T]{value: v, expiresAt: expiresAt}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = next
}

// Snapshot returns every item still held, expired or not, and whether all of
// them are still fresh. An empty cache reports fresh == false.
func (c *Cache[T]) Snapshot() (map[string]T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	fresh := len(c.items) > 0
	out := make(map[string]T, len(c.items))
	for k, it := range c.items {
		if it.expired(now) {
			fresh = false
		}
		out[k] = it.value
	}
	return out, fresh
}

// Delete removes a key from the cache and returns the removed value
func (c *Cache[T]) Delete(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if exists {
		delete(c.items, key)
	}
	return item.value, exists
}

// Clear removes all items from the cache
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]item[T])
}

// Size returns the number of items (including expired)
func (c *Cache[T]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the background cleanup goroutine
func (c *Cache[T]) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanup runs periodically to remove expired items
func (c *Cache[T]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.RemoveExpired()
		case <-c.stop:
			return
		}
	}
}

// RemoveExpired deletes every expired item and returns how many were removed
func (c *Cache[T]) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}
