// Package disk provides a file-backed TTL cache so repeated runs can skip
// refetching pages that were retrieved recently.
package disk

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/filmesbr/torrent-movies-etl/internal/hash/sha256"
	"github.com/filmesbr/torrent-movies-etl/internal/pipeline"
)

// Cache stores one file per key under Root, named by the SHA-256 of the key.
// Freshness is judged by file modification time.
type Cache struct {
	root   string
	ttl    time.Duration
	hasher *sha256.Hasher
	clock  pipeline.Clock
}

// New creates the cache directory if needed and returns a Cache.
func New(root string, ttl time.Duration, clock pipeline.Clock) (*Cache, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		root:   root,
		ttl:    ttl,
		hasher: sha256.New(),
		clock:  clock,
	}, nil
}

// Get returns the cached payload for key if the file exists and is fresh.
// Any filesystem error is treated as a miss; the caller falls through to the
// network.
func (c *Cache) Get(key string) ([]byte, bool) {
	path, err := c.path(key)
	if err != nil {
		return nil, false
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.ttl > 0 && c.clock.Now().Sub(info.ModTime()) >= c.ttl {
		// Lazy eviction keeps Get side-effect free on the happy path.
		_ = os.Remove(path)
		return nil, false
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return payload, true
}

// Put writes payload atomically: a temp file rename so concurrent readers
// never observe a partial entry.
func (c *Cache) Put(key string, payload []byte) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write cache payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish cache entry: %w", err)
	}
	return nil
}

func (c *Cache) path(key string) (string, error) {
	digest, err := c.hasher.Hash([]byte(key))
	if err != nil {
		return "", fmt.Errorf("hash cache key: %w", err)
	}
	return filepath.Join(c.root, digest+".html"), nil
}
