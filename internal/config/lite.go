// Package config provides configuration management for the tracker.
// This file contains the lightweight configuration for the standalone MCP server.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the entry database and exports

	// Cache settings
	CacheMaxUsers int           // Users whose recent entries are kept in memory
	CacheTTL      time.Duration // Lifetime of a cached entry list

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".lars-tracker")

	return &LiteConfig{
		DataDir:       dataDir,
		CacheMaxUsers: 1000,
		CacheTTL:      5 * time.Minute,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("LARS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("LARS_CACHE_MAX_USERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxUsers = n
		}
	}
	if v := os.Getenv("LARS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("LARS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LARS_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// EntriesDBPath returns the path to the symptom entry SQLite database.
func (c *LiteConfig) EntriesDBPath() string {
	return filepath.Join(c.DataDir, "entries.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
