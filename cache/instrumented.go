package cache

import (
	"encoding/json"

	"github.com/briangreenhill/mldash/internal/metrics"
)

// Instrumented wraps a Cache and records hits and misses per endpoint
type Instrumented struct {
	Cache
}

// NewInstrumented creates a metrics-recording wrapper around c
func NewInstrumented(c Cache) *Instrumented {
	return &Instrumented{Cache: c}
}

// Get implements Reader
func (ic *Instrumented) Get(key string) (json.RawMessage, bool) {
	payload, ok := ic.Cache.Get(key)
	if ok {
		metrics.IncCacheHit(EndpointOf(key))
	} else {
		metrics.IncCacheMiss(EndpointOf(key))
	}
	return payload, ok
}

// ClearPrefix implements Invalidator
func (ic *Instrumented) ClearPrefix(prefix string) int {
	n := ic.Cache.ClearPrefix(prefix)
	metrics.AddCacheInvalidations(prefix, n)
	return n
}
