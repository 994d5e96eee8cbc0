// Package config loads gridsync configuration from file, environment and
// flags via viper.
//
// Lookup order: explicit --config path, then gridsync.yaml in the working
// directory, then $HOME/.config/gridsync/. Every key can be overridden
// with a GRIDSYNC_ prefixed environment variable, e.g.
// GRIDSYNC_GRID_TOKEN.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Grid holds the replica service connection settings.
type Grid struct {
	// BaseURL is the grid service root, e.g. https://grid.example.com/api
	BaseURL string `mapstructure:"base_url"`

	// Token is the bearer token for the service.
	Token string `mapstructure:"token"`

	// Timeout bounds each range call.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Sync holds engine tunables.
type Sync struct {
	// Policy is "versioned" or "identity".
	Policy string `mapstructure:"policy"`

	// MaxRetries is the verification attempt budget per commit.
	MaxRetries int `mapstructure:"max_retries"`

	// PaddingMargin is the number of extra blank rows written beyond the
	// observed shrinkage.
	PaddingMargin int `mapstructure:"padding_margin"`
}

// Daemon holds background mirror settings.
type Daemon struct {
	// Debounce is how long to batch rapid file changes before committing.
	Debounce time.Duration `mapstructure:"debounce"`

	// FullSyncInterval is how often every collection is re-committed
	// regardless of observed file changes.
	FullSyncInterval time.Duration `mapstructure:"full_sync_interval"`

	// LogFile, when set, routes daemon logs to a rotated file instead of
	// stderr.
	LogFile string `mapstructure:"log_file"`

	// LogMaxSizeMB is the rotation threshold for LogFile.
	LogMaxSizeMB int `mapstructure:"log_max_size_mb"`

	// LogMaxBackups is how many rotated files to keep.
	LogMaxBackups int `mapstructure:"log_max_backups"`
}

// Config is the root gridsync configuration.
type Config struct {
	// DataDir is the root directory holding one record directory per
	// collection.
	DataDir string `mapstructure:"data_dir"`

	// Manifest is the path to the collection manifest YAML.
	Manifest string `mapstructure:"manifest"`

	// CachePath is the snapshot cache database file. Empty disables the
	// cache.
	CachePath string `mapstructure:"cache_path"`

	// DashboardPort is the dashboard listen port.
	DashboardPort int `mapstructure:"dashboard_port"`

	Grid   Grid   `mapstructure:"grid"`
	Sync   Sync   `mapstructure:"sync"`
	Daemon Daemon `mapstructure:"daemon"`
}

// Load reads the configuration. path may be empty to use the default
// search locations.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", ".gridsync/data")
	v.SetDefault("manifest", ".gridsync/collections.yaml")
	v.SetDefault("cache_path", ".gridsync/cache.db")
	v.SetDefault("dashboard_port", 8080)
	v.SetDefault("grid.base_url", "")
	v.SetDefault("grid.token", "")
	v.SetDefault("grid.timeout", 30*time.Second)
	v.SetDefault("sync.policy", "versioned")
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.padding_margin", 5)
	v.SetDefault("daemon.debounce", 500*time.Millisecond)
	v.SetDefault("daemon.full_sync_interval", 5*time.Minute)
	v.SetDefault("daemon.log_file", "")
	v.SetDefault("daemon.log_max_size_mb", 10)
	v.SetDefault("daemon.log_max_backups", 3)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gridsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/gridsync")
	}

	v.SetEnvPrefix("GRIDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		// A missing config file is fine when relying on defaults and env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Sync.Policy {
	case "versioned", "identity":
	default:
		return fmt.Errorf("sync.policy must be \"versioned\" or \"identity\" (got %q)", c.Sync.Policy)
	}
	if c.Sync.MaxRetries < 1 {
		return fmt.Errorf("sync.max_retries must be at least 1 (got %d)", c.Sync.MaxRetries)
	}
	if c.Sync.PaddingMargin < 0 {
		return fmt.Errorf("sync.padding_margin must not be negative (got %d)", c.Sync.PaddingMargin)
	}
	return nil
}
