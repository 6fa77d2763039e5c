package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureConfig_WritesDefaultsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	created, err := EnsureConfig(path)
	require.NoError(t, err)
	assert.True(t, created)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, defaultAppConfig().API.BaseURL, cfg.API.BaseURL)
	assert.Equal(t, 20, cfg.Inbox.PageSize)
	assert.Equal(t, "sqlite", cfg.Cache.Driver)

	require.NoError(t, os.WriteFile(path, []byte("inbox:\n  page_size: 50\n"), 0o644))

	created, err = EnsureConfig(path)
	require.NoError(t, err)
	assert.False(t, created, "an existing file is left alone")

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Inbox.PageSize)
}

func TestSaveConfig_RoundTripsEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := defaultAppConfig()
	cfg.API.BaseURL = "https://tasks.example.com/api"
	cfg.Cache.Driver = "redis"
	cfg.Cache.RedisAddr = "127.0.0.1:6379"
	cfg.Metrics.Addr = "127.0.0.1:9464"
	require.NoError(t, SaveConfig(path, cfg))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.API, got.API)
	assert.Equal(t, cfg.Cache, got.Cache)
	assert.Equal(t, cfg.Metrics, got.Metrics)
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  driver: etcd\n"), 0o644))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "cache.driver")
}
