// Package cache provides the request cache used by the dashboard API client:
// a keyed, time-expiring store of JSON payloads plus stable key generation.
package cache

import (
	"encoding/json"
	"errors"
	"time"
)

// DefaultTTL is how long an entry stays fresh unless configured otherwise
const DefaultTTL = 5 * time.Minute

var (
	// ErrNotFound is returned when a cache entry is not found or expired
	ErrNotFound = errors.New("cache entry not found or expired")
)

// Entry represents a cached payload with the time it was stored
type Entry struct {
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
}

// Reader defines the interface for reading cache entries
type Reader interface {
	// Get returns the payload for key if present and still fresh
	Get(key string) (json.RawMessage, bool)
}

// Writer defines the interface for writing cache entries
type Writer interface {
	// Set stores payload under key, stamping the current time
	Set(key string, payload json.RawMessage)

	// Epoch returns a counter bumped by every Clear and ClearPrefix
	Epoch() uint64

	// SetIfCurrent stores payload only if no invalidation has happened since
	// epoch was read. A response fetched before an invalidation must not
	// repopulate the cache after it.
	SetIfCurrent(key string, payload json.RawMessage, epoch uint64) bool
}

// Invalidator removes entries ahead of their expiry
type Invalidator interface {
	// Clear empties the whole store
	Clear()

	// ClearPrefix removes every entry whose key starts with prefix and
	// returns how many were removed
	ClearPrefix(prefix string) int
}

// Cache is the main interface that combines all cache operations
type Cache interface {
	Reader
	Writer
	Invalidator
}
