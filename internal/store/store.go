package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Cache.Get when no value is stored under the key.
var ErrNotFound = errors.New("cache key not found")

// Cache is the durable key-value store that holds best-effort client state
// across restarts. Values are opaque bytes; writes are last-writer-wins.
type Cache interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying connection.
	Close() error
}

// NotificationsKey returns the well-known key holding the serialized
// notification list for userID.
func NotificationsKey(userID string) string {
	if userID == "" {
		return "notifications"
	}
	return "notifications:" + userID
}
