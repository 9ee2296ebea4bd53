package embedding

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache maps an image fingerprint to its computed embedding so that repeated
// uploads of identical bytes skip the embedding model. Entries are evicted
// least-recently-used at capacity and expire after the TTL regardless of
// access pattern.
//
// The cache is best-effort: a nil *Cache is valid and behaves as a permanent
// miss, so callers never fail a recognition request over cache state.
type Cache struct {
	lru *expirable.LRU[string, []float32]
}

// NewCache creates a cache with the given capacity and entry TTL.
func NewCache(capacity int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, []float32](capacity, nil, ttl)}
}

// Get returns the cached embedding for fingerprint if present and unexpired.
func (c *Cache) Get(fingerprint string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(fingerprint)
}

// Put stores the embedding for fingerprint, evicting the oldest entry at capacity.
func (c *Cache) Put(fingerprint string, embedding []float32) {
	if c == nil {
		return
	}
	c.lru.Add(fingerprint, embedding)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
