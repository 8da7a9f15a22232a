package cache

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// MemoryCache implements the Cache interface with an in-process map.
// Stale entries are dropped lazily when they are next read.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	epoch   uint64
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a MemoryCache
type Option func(*MemoryCache)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemoryCache creates an empty cache whose entries expire after ttl.
// A non-positive ttl falls back to DefaultTTL.
func NewMemoryCache(ttl time.Duration, opts ...Option) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &MemoryCache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get implements Reader
func (c *MemoryCache) Get(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.now().Sub(entry.StoredAt) < c.ttl {
		return entry.Payload, true
	}

	c.mu.Lock()
	// a concurrent Set may have refreshed it since the read lock was released
	if cur, ok := c.entries[key]; ok && cur.StoredAt.Equal(entry.StoredAt) {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil, false
}

// Lookup returns the whole entry for key, or ErrNotFound when it is missing or stale
func (c *MemoryCache) Lookup(key string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.StoredAt) >= c.ttl {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

// Set implements Writer
func (c *MemoryCache) Set(key string, payload json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Payload: payload, StoredAt: c.now()}
}

// Epoch implements Writer
func (c *MemoryCache) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// SetIfCurrent implements Writer
func (c *MemoryCache) SetIfCurrent(key string, payload json.RawMessage, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.entries[key] = Entry{Payload: payload, StoredAt: c.now()}
	return true
}

// Clear implements Invalidator
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
	c.epoch++
}

// ClearPrefix implements Invalidator
func (c *MemoryCache) ClearPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, stale ones included
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL returns the configured time-to-live
func (c *MemoryCache) TTL() time.Duration {
	return c.ttl
}
