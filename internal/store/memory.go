package store

import (
	"context"
	gosync "sync"
)

// MemoryCache is a process-local Cache, used when persistence is disabled
// and in tests.
type MemoryCache struct {
	mu     gosync.Mutex
	values map[string][]byte
	writes int
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{values: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value under key.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[key] = append([]byte(nil), value...)
	c.writes++
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.values, key)
	return nil
}

// Writes returns how many Set calls have been made.
func (c *MemoryCache) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// Close is a no-op.
func (c *MemoryCache) Close() error { return nil }
