package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteCache {
	t.Helper()

	c, err := NewSQLiteCache(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSQLiteCache_GetMissing(t *testing.T) {
	c := newTestSQLite(t)

	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteCache_SetOverwrites(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("one")))
	require.NoError(t, c.Set(ctx, "k", []byte("two")))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}

func TestSQLiteCache_Delete(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "k"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteCache_ReopenKeepsValuesAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	c, err := NewSQLiteCache(path)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, NotificationsKey("u1"), []byte(`[]`)))
	require.NoError(t, c.Close())

	c, err = NewSQLiteCache(path)
	require.NoError(t, err)
	defer c.Close()

	var version int
	require.NoError(t, c.db.Get(&version, "SELECT MAX(version) FROM schema_version"))
	assert.Equal(t, len(migrations), version)

	got, err := c.Get(ctx, NotificationsKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))
}

func TestNotificationsKey(t *testing.T) {
	assert.Equal(t, "notifications", NotificationsKey(""))
	assert.Equal(t, "notifications:u42", NotificationsKey("u42"))
}
