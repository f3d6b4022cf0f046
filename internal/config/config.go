// Package config loads service configuration from a YAML file, applying
// defaults for anything unset. A missing file yields the default config.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// DBPath is the SQLite database file. Empty selects the in-memory
	// store (useful for development).
	DBPath string `yaml:"db_path"`

	// ReconcileDebounce coalesces reconciliation triggers.
	ReconcileDebounce time.Duration `yaml:"reconcile_debounce"`

	// RetentionDays deletes annotations older than this many days at
	// startup. Zero disables cleanup.
	RetentionDays int `yaml:"retention_days"`
}

// Load reads configuration from path. A missing file is not an error.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)

	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.defaults()

	return &cfg, nil
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}

	if c.ReconcileDebounce <= 0 {
		c.ReconcileDebounce = 100 * time.Millisecond
	}

	if c.RetentionDays < 0 {
		c.RetentionDays = 0
	}
}
