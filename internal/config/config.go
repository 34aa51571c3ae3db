// Package config loads syncd's environment-based configuration.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for syncd.
type Config struct {
	// DBPath is the path to the SQLite store file.
	DBPath string `env:"SYNCD_DB_PATH" envDefault:"syncd.db"`

	// SyncDir is the local directory kept in sync with the cloud.
	SyncDir string `env:"SYNCD_SYNC_DIR,required"`

	// APIBaseURL is the base URL of the remote sync API.
	APIBaseURL string `env:"SYNCD_API_BASE_URL,required"`

	// UserEmail identifies the account the API requests are made on
	// behalf of.
	UserEmail string `env:"SYNCD_USER_EMAIL,required"`

	// DeviceName identifies this client to the API. Defaults to the
	// system hostname.
	DeviceName string `env:"SYNCD_DEVICE_NAME"`

	// Environment controls log format: "production" for JSON, anything
	// else for human-readable text.
	Environment string `env:"SYNCD_ENVIRONMENT" envDefault:"development"`

	// LogFile, if set, routes logs through a rotating file writer
	// instead of stdout.
	LogFile string `env:"SYNCD_LOG_FILE"`

	// PollInterval is how often the watcher checks a pending event's
	// mtime for stability before considering it settled.
	PollInterval time.Duration `env:"SYNCD_POLL_INTERVAL" envDefault:"100ms"`

	// SettleTime is how long a pending event's mtime must remain
	// unchanged, after PollInterval, before it fires.
	SettleTime time.Duration `env:"SYNCD_SETTLE_TIME" envDefault:"2s"`

	// ReconcileInterval is how often the periodic three-way reconcile
	// loop runs against the cloud.
	ReconcileInterval time.Duration `env:"SYNCD_RECONCILE_INTERVAL" envDefault:"5m"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "syncd"
		}

		cfg.DeviceName = hostname
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Resolve SyncDir and DBPath to absolute paths at startup.
	absSyncDir, err := filepath.Abs(cfg.SyncDir)
	if err != nil {
		return nil, fmt.Errorf("resolving sync dir to absolute path: %w", err)
	}

	cfg.SyncDir = absSyncDir

	absDBPath, err := filepath.Abs(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("resolving db path to absolute path: %w", err)
	}

	cfg.DBPath = absDBPath

	return cfg, nil
}

func (c *Config) validate() error {
	if c.SyncDir == "" {
		return fmt.Errorf("SYNCD_SYNC_DIR is required")
	}

	if c.APIBaseURL == "" {
		return fmt.Errorf("SYNCD_API_BASE_URL is required")
	}

	if c.UserEmail == "" {
		return fmt.Errorf("SYNCD_USER_EMAIL is required")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("SYNCD_POLL_INTERVAL must be positive")
	}

	if c.SettleTime <= 0 {
		return fmt.Errorf("SYNCD_SETTLE_TIME must be positive")
	}

	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("SYNCD_RECONCILE_INTERVAL must be positive")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
