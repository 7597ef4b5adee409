// Package config loads runtime settings from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries everything the session layer needs at startup. The
// passphrase is intentionally not defaulted: an empty value means the
// caller must prompt for it.
type Config struct {
	APIBaseURL  string        `env:"SESSIONKIT_API_URL" envDefault:"http://localhost:8080"`
	DataDir     string        `env:"SESSIONKIT_DATA_DIR"`
	Passphrase  string        `env:"SESSIONKIT_PASSPHRASE"`
	CacheTTL    time.Duration `env:"SESSIONKIT_CACHE_TTL" envDefault:"5m"`
	HTTPTimeout time.Duration `env:"SESSIONKIT_HTTP_TIMEOUT" envDefault:"15s"`
}

// Load parses configuration from the environment. DataDir falls back to
// a sessionkit directory under the user's home.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".sessionkit")
	}
	return &cfg, nil
}

// DBPath is the vault database file inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "sessionkit.db")
}
