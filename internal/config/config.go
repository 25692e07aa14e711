package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Network   NetworkConfig   `mapstructure:"network"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type StorageConfig struct {
	// Path to the on-device SQLite file backing the cache and the queue.
	Path string `mapstructure:"path"`
}

type RemoteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Timeout   string `mapstructure:"timeout"`
	AuthToken string `mapstructure:"auth_token"`
}

func (r RemoteConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

type SyncConfig struct {
	// AutoSync drains the queue automatically when connectivity returns.
	AutoSync bool `mapstructure:"auto_sync"`
	// Resources lists the cache keys refreshed by the "refresh cache" operation.
	Resources []string `mapstructure:"resources"`
	// MaxAttempts is informational only; actions are never dropped for
	// exceeding it, the count is surfaced to the UI.
	MaxAttempts int `mapstructure:"max_attempts"`
}

type NetworkConfig struct {
	// Debounce is the minimum stable period before a reachability
	// transition is published to subscribers.
	Debounce string `mapstructure:"debounce"`
	// InitialOnline seeds the monitor before the platform bridge reports.
	InitialOnline bool `mapstructure:"initial_online"`
}

func (n NetworkConfig) GetDebounce() time.Duration {
	d, err := time.ParseDuration(n.Debounce)
	if err != nil || d <= 0 {
		return 1500 * time.Millisecond
	}
	return d
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Host        string   `mapstructure:"host"`
	CorsOrigins []string `mapstructure:"cors_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("storage.path", "./data/offline.db")
	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("network.debounce", "1500ms")
	v.SetDefault("network.initial_online", true)
	v.SetDefault("sync.auto_sync", true)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "@every 5m")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8580)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
