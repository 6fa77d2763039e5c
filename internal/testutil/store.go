package testutil

import (
	"testing"

	"github.com/nhle/taskboard/internal/store"
)

// NewTestCache creates an in-memory SQLiteCache with all migrations applied.
// It automatically closes the cache when the test completes.
func NewTestCache(t *testing.T) *store.SQLiteCache {
	t.Helper()

	c, err := store.NewSQLiteCache(":memory:")
	if err != nil {
		t.Fatalf("creating test cache: %v", err)
	}

	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("closing test cache: %v", err)
		}
	})

	return c
}
