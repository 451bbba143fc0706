/*
Package config
File: config.go
Description:
    Server configuration loaded from 'tycoon.yaml'.
    Every field has a default, so a missing file or a partial file is fine.
    The auth signing secret may be supplied through TYCOON_AUTH_SECRET instead
    of being written to disk.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvAuthSecret overrides Auth.Secret when set.
const EnvAuthSecret = "TYCOON_AUTH_SECRET"

// Config is the root configuration struct, mapping to the entire 'tycoon.yaml' file.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Game    GameConfig    `yaml:"game"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`            // Listen address (e.g., ":8081")
	ClickRate      float64       `yaml:"click_rate"`      // Intents per second allowed per user
	ClickBurst     int           `yaml:"click_burst"`     // Token bucket size per user
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`  // Time allowed for in-flight requests on shutdown
	AllowedOrigins []string      `yaml:"allowed_origins"` // CORS origins; empty allows any
}

// GameConfig controls the economy loops.
type GameConfig struct {
	CatalogPath      string        `yaml:"catalog_path"`      // Empty uses the embedded catalog
	WatchCatalog     bool          `yaml:"watch_catalog"`     // Reload the catalog when the file changes
	PulseEvery       int           `yaml:"pulse_every"`       // Push state to clients every N ticks
	AutoSaveInterval time.Duration `yaml:"autosave_interval"` // Period of the remote auto-save
	AutoSaveDefault  bool          `yaml:"autosave_default"`  // Whether new sessions start with auto-save on
}

// StorageConfig locates the persistence files.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"` // Holds the local store and the document database
}

// AuthConfig controls identity verification and session tokens.
type AuthConfig struct {
	Secret           string        `yaml:"secret"`            // Signs session tokens
	IdentitySecret   string        `yaml:"identity_secret"`   // Verifies upstream identity tokens
	Issuer           string        `yaml:"issuer"`            // Expected upstream issuer
	Audience         string        `yaml:"audience"`          // Expected upstream audience
	AllowedProviders []string      `yaml:"allowed_providers"` // Sign-in methods that are enabled
	TokenTTL         time.Duration `yaml:"token_ttl"`         // Lifetime of a session token
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	File       string `yaml:"file"`        // Empty logs to stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"` // Rotation threshold
	MaxBackups int    `yaml:"max_backups"` // Rotated files kept
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:          ":8081",
			ClickRate:     40,
			ClickBurst:    80,
			ShutdownGrace: 5 * time.Second,
		},
		Game: GameConfig{
			PulseEvery:       10,
			AutoSaveInterval: 30 * time.Second,
			AutoSaveDefault:  true,
		},
		Storage: StorageConfig{
			DataDir: "data",
		},
		Auth: AuthConfig{
			Issuer:           "https://accounts.google.com",
			Audience:         "idle-tycoon",
			AllowedProviders: []string{"google.com"},
			TokenTTL:         24 * time.Hour,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Load reads the YAML file at path over the defaults.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	// 1. Read the YAML file
	f, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		// 2. Unmarshal over the defaults
		if err := yaml.Unmarshal(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	// 3. Environment overrides
	if secret := os.Getenv(EnvAuthSecret); secret != "" {
		cfg.Auth.Secret = secret
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}
	if c.Game.PulseEvery <= 0 {
		return errors.New("config: game.pulse_every must be positive")
	}
	if c.Game.AutoSaveInterval <= 0 {
		return errors.New("config: game.autosave_interval must be positive")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("config: auth.token_ttl must be positive")
	}
	if c.Server.ClickRate <= 0 || c.Server.ClickBurst <= 0 {
		return errors.New("config: server.click_rate and server.click_burst must be positive")
	}
	return nil
}

// LocalStorePath is the directory of the on-device key-value store.
func (c Config) LocalStorePath() string {
	return filepath.Join(c.Storage.DataDir, "local")
}

// DocumentStorePath is the SQLite file backing the remote document store.
func (c Config) DocumentStorePath() string {
	return filepath.Join(c.Storage.DataDir, "documents.db")
}
