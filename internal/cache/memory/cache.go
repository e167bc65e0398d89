// Package memory provides an in-process TTL cache for fetched payloads.
package memory

import (
	"sync"
	"time"

	"github.com/filmesbr/torrent-movies-etl/internal/pipeline"
)

type entry struct {
	payload    []byte
	insertedAt time.Time
}

// Cache is a map-backed pipeline.Cache with TTL-based expiry. Expired
// entries behave as misses and are evicted lazily on read.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	clock   pipeline.Clock
}

// New creates a Cache. A non-positive ttl disables expiry.
func New(ttl time.Duration, clock pipeline.Clock) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the cached payload for key if it is still fresh.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		c.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed it.
		if cur, ok := c.entries[key]; ok && c.expired(cur) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.payload, true
}

// Put stores payload under key, replacing any prior entry.
func (c *Cache) Put(key string, payload []byte) error {
	c.mu.Lock()
	c.entries[key] = entry{
		payload:    append([]byte(nil), payload...),
		insertedAt: c.clock.Now(),
	}
	c.mu.Unlock()
	return nil
}

// Len reports the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) expired(e entry) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.clock.Now().Sub(e.insertedAt) >= c.ttl
}
