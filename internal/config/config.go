// Package config loads application configuration from file, environment,
// and defaults, in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	// SheetURL is the published CSV export of the issue spreadsheet.
	SheetURL string `mapstructure:"sheet_url"`

	// SnapshotPath is an optional local CSV file used instead of (or as a
	// fallback for) the remote sheet. The daemon watches it for changes.
	SnapshotPath string `mapstructure:"snapshot_path"`

	// MappingPath optionally overrides the built-in column mapping with a
	// YAML file.
	MappingPath string `mapstructure:"mapping_path"`

	// DatabasePath is the SQLite file.
	DatabasePath string `mapstructure:"database_path"`

	// LockPath is the cross-process sync lock file.
	LockPath string `mapstructure:"lock_path"`

	// LogPath is the rotating log file. Empty logs to stderr only.
	LogPath string `mapstructure:"log_path"`

	SyncInterval time.Duration `mapstructure:"sync_interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`

	// Prune deletes local rows missing from the snapshot. Off by default.
	Prune bool `mapstructure:"prune"`

	// Port is the dashboard HTTP port.
	Port int `mapstructure:"port"`
}

// Load reads configuration. path may name a YAML config file explicitly;
// when empty, issuedash.yaml is searched in the working directory. Every key
// can be overridden with an ISSUEDASH_ environment variable
// (e.g. ISSUEDASH_SHEET_URL).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Every key needs a default so environment-only overrides are seen
	// by Unmarshal.
	v.SetDefault("sheet_url", "")
	v.SetDefault("snapshot_path", "")
	v.SetDefault("mapping_path", "")
	v.SetDefault("log_path", "")
	v.SetDefault("database_path", "data/issues.db")
	v.SetDefault("lock_path", "data/sync.lock")
	v.SetDefault("sync_interval", time.Hour)
	v.SetDefault("fetch_timeout", 60*time.Second)
	v.SetDefault("max_retries", 3)
	v.SetDefault("prune", false)
	v.SetDefault("port", 8080)

	v.SetEnvPrefix("ISSUEDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("issuedash")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
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

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive, got %s", c.SyncInterval)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive, got %d", c.MaxRetries)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

// HasSource reports whether any sheet source is configured.
func (c *Config) HasSource() bool {
	return c.SheetURL != "" || c.SnapshotPath != ""
}
