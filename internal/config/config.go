// Package config handles Herald configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultDatabase = "herald.db"
	DefaultWorkers  = 4
)

// Config represents the Herald configuration file.
type Config struct {
	// Database is the sqlite path. Relative paths resolve against the
	// directory of the config file.
	Database string `toml:"database"`

	Log    LogConfig    `toml:"log"`
	Notify NotifyConfig `toml:"notify"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Format is "text" or "json".
	Format string `toml:"format"`

	// Level is one of none, debug, info, warn or error.
	Level string `toml:"level"`
}

// NotifyConfig controls subscription fan-out.
type NotifyConfig struct {
	// Workers is the number of events processed concurrently.
	Workers int `toml:"workers"`

	// Strict makes current-user criteria fail instead of evaluating to
	// false when no user is available.
	Strict bool `toml:"strict"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Database: DefaultDatabase,
		Log:      LogConfig{Format: "text", Level: "info"},
		Notify:   NotifyConfig{Workers: DefaultWorkers},
	}
}

// Load loads the configuration from the default location.
// Returns a default config if the file doesn't exist.
func Load() (*Config, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom loads the configuration from a specific path. A missing file
// yields the defaults; keys absent from the file keep their defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "", "none", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of none, debug, info, warn, error; got %q", c.Log.Level)
	}
	if c.Notify.Workers < 1 {
		return fmt.Errorf("notify.workers must be at least 1, got %d", c.Notify.Workers)
	}
	return nil
}

// DatabasePath resolves Database against the directory holding the config
// file.
func (c *Config) DatabasePath(configPath string) string {
	db := c.Database
	if db == "" {
		db = DefaultDatabase
	}
	if filepath.IsAbs(db) {
		return db
	}
	return filepath.Join(filepath.Dir(configPath), filepath.FromSlash(db))
}

// ResolveConfigPath resolves the effective config path from an optional override.
func ResolveConfigPath(explicitConfigPath string) string {
	if strings.TrimSpace(explicitConfigPath) != "" {
		return explicitConfigPath
	}
	return DefaultPath()
}

// DefaultPath returns the default config file path.
// Checks ~/.config/herald/config.toml first (XDG style),
// then falls back to OS-specific location.
func DefaultPath() string {
	if xdgPath, err := XDGPath(); err == nil {
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath
		}
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "herald", "config.toml")
	}

	// Last resort fallback
	return filepath.Join(".", "config.toml")
}

// XDGPath returns the XDG-style config path (~/.config/herald/config.toml).
func XDGPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "herald", "config.toml"), nil
}
