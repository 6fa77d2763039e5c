package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// APIConfig holds settings for the REST backend.
type APIConfig struct {
	// BaseURL is the root URL of the backend (e.g., https://api.example.com).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// RequestTimeoutSec bounds every REST call.
	RequestTimeoutSec int `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
}

// RealtimeConfig holds settings for the push channel.
type RealtimeConfig struct {
	URL                string `mapstructure:"url" yaml:"url"`
	ConnectTimeoutSec  int    `mapstructure:"connect_timeout_sec" yaml:"connect_timeout_sec"`
	ReuseTimeoutSec    int    `mapstructure:"reuse_timeout_sec" yaml:"reuse_timeout_sec"`
	MinBackoffMs       int    `mapstructure:"min_backoff_ms" yaml:"min_backoff_ms"`
	MaxBackoffMs       int    `mapstructure:"max_backoff_ms" yaml:"max_backoff_ms"`
	RefreshOnReconnect bool   `mapstructure:"refresh_on_reconnect" yaml:"refresh_on_reconnect"`
}

// InboxConfig holds settings for the notification store and its sync.
type InboxConfig struct {
	PageSize        int `mapstructure:"page_size" yaml:"page_size"`
	RefreshDelayMs  int `mapstructure:"refresh_delay_ms" yaml:"refresh_delay_ms"`
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	CacheDebounceMs int `mapstructure:"cache_debounce_ms" yaml:"cache_debounce_ms"`
}

// CacheConfig selects the durable local cache backend.
type CacheConfig struct {
	// Driver is "sqlite" (default) or "redis".
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db" yaml:"redis_db"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`

	// File, when set, receives the log stream instead of stderr.
	File string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address (e.g., 127.0.0.1:9464); empty disables it.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Realtime RealtimeConfig `mapstructure:"realtime" yaml:"realtime"`
	Inbox    InboxConfig    `mapstructure:"inbox" yaml:"inbox"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// RequestTimeout returns the REST timeout as a duration.
func (c APIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// ConnectTimeout returns the initial connect wait as a duration.
func (c RealtimeConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

// ReuseTimeout returns the wait applied when a connection already exists.
func (c RealtimeConfig) ReuseTimeout() time.Duration {
	return time.Duration(c.ReuseTimeoutSec) * time.Second
}

// MinBackoff returns the lower reconnect delay bound.
func (c RealtimeConfig) MinBackoff() time.Duration {
	return time.Duration(c.MinBackoffMs) * time.Millisecond
}

// MaxBackoff returns the upper reconnect delay bound.
func (c RealtimeConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMs) * time.Millisecond
}

// RefreshDelay returns the batching window for consistency refreshes.
func (c InboxConfig) RefreshDelay() time.Duration {
	return time.Duration(c.RefreshDelayMs) * time.Millisecond
}

// PollInterval returns the periodic full-fetch interval; zero disables it.
func (c InboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// CacheDebounce returns the delay for coalescing cache writes; zero means
// every mutation is written synchronously.
func (c InboxConfig) CacheDebounce() time.Duration {
	return time.Duration(c.CacheDebounceMs) * time.Millisecond
}

// configDir returns ~/.config/taskboard, falling back to the working directory.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "taskboard")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/taskboard/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:           "http://localhost:5000/api",
			RequestTimeoutSec: 15,
		},
		Realtime: RealtimeConfig{
			URL:                "ws://localhost:5000/ws",
			ConnectTimeoutSec:  10,
			ReuseTimeoutSec:    5,
			MinBackoffMs:       1000,
			MaxBackoffMs:       5000,
			RefreshOnReconnect: true,
		},
		Inbox: InboxConfig{
			PageSize:        20,
			RefreshDelayMs:  2000,
			PollIntervalSec: 0,
			CacheDebounceMs: 0,
		},
		Cache: CacheConfig{
			Driver: "sqlite",
			Path:   filepath.Join(configDir(), "cache.db"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// setDefaults mirrors defaultAppConfig into v so that partially written
// files and environment overrides resolve against the same values.
func setDefaults(v *viper.Viper, d *AppConfig) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.request_timeout_sec", d.API.RequestTimeoutSec)
	v.SetDefault("realtime.url", d.Realtime.URL)
	v.SetDefault("realtime.connect_timeout_sec", d.Realtime.ConnectTimeoutSec)
	v.SetDefault("realtime.reuse_timeout_sec", d.Realtime.ReuseTimeoutSec)
	v.SetDefault("realtime.min_backoff_ms", d.Realtime.MinBackoffMs)
	v.SetDefault("realtime.max_backoff_ms", d.Realtime.MaxBackoffMs)
	v.SetDefault("realtime.refresh_on_reconnect", d.Realtime.RefreshOnReconnect)
	v.SetDefault("inbox.page_size", d.Inbox.PageSize)
	v.SetDefault("inbox.refresh_delay_ms", d.Inbox.RefreshDelayMs)
	v.SetDefault("inbox.poll_interval_sec", d.Inbox.PollIntervalSec)
	v.SetDefault("inbox.cache_debounce_ms", d.Inbox.CacheDebounceMs)
	v.SetDefault("cache.driver", d.Cache.Driver)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory is loaded first, and TASKBOARD_*
// environment variables override file values (TASKBOARD_API_BASE_URL for
// api.base_url). A missing file yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	// A missing .env is the common case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TASKBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, defaultAppConfig())

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *AppConfig) Validate() error {
	if c.Inbox.PageSize <= 0 {
		return fmt.Errorf("inbox.page_size must be positive, got %d", c.Inbox.PageSize)
	}
	if c.Realtime.MinBackoffMs <= 0 || c.Realtime.MaxBackoffMs < c.Realtime.MinBackoffMs {
		return fmt.Errorf(
			"realtime backoff bounds invalid: min=%dms max=%dms",
			c.Realtime.MinBackoffMs, c.Realtime.MaxBackoffMs,
		)
	}
	switch c.Cache.Driver {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("cache.driver must be sqlite or redis, got %q", c.Cache.Driver)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("realtime", cfg.Realtime)
	v.Set("inbox", cfg.Inbox)
	v.Set("cache", cfg.Cache)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// EnsureConfig writes the default configuration to path when no file
// exists there yet, so a first run leaves an editable config behind. It
// reports whether a file was created.
func EnsureConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("checking config %s: %w", path, err)
	}
	if err := SaveConfig(path, defaultAppConfig()); err != nil {
		return false, err
	}
	return true, nil
}
