// Package config loads CLI configuration from a YAML file overlaid with
// GAMESTATE_ environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "GAMESTATE_"

// DefaultPath is read when no file is given and silently skipped when missing.
const DefaultPath = "gamestate.yaml"

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

var (
	ErrUnknownStore  = errors.New("unknown store kind")
	ErrMissingPath   = errors.New("store path is required")
	ErrInvalidKey    = errors.New("encryption key must be 32 bytes hex encoded")
	ErrInvalidFormat = errors.New("log format must be text or json")
)

// Config is the CLI configuration.
type Config struct {
	Machine      string `yaml:"machine" env:"MACHINE"`
	InitialState string `yaml:"initial_state" env:"INITIAL_STATE"`
	Recovery     bool   `yaml:"recovery" env:"RECOVERY"`

	Log   LogConfig   `yaml:"log" envPrefix:"LOG_"`
	Store StoreConfig `yaml:"store" envPrefix:"STORE_"`
	HTTP  HTTPConfig  `yaml:"http" envPrefix:"HTTP_"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type StoreConfig struct {
	Kind        string        `yaml:"kind" env:"KIND"`
	Path        string        `yaml:"path" env:"PATH"`
	RedisURL    string        `yaml:"redis_url" env:"REDIS_URL"`
	RedisPrefix string        `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	LockTTL     time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`

	// EncryptionKey enables value encryption when set (hex, 32 bytes).
	EncryptionKey string   `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
	FallbackKeys  []string `yaml:"fallback_keys" env:"FALLBACK_KEYS" envSeparator:","`
	PIIPatterns   []string `yaml:"pii_patterns" env:"PII_PATTERNS" envSeparator:","`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Machine:      "main",
		InitialState: "Idle",
		Recovery:     true,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Kind:        StoreMemory,
			RedisPrefix: "gamestate:",
			LockTTL:     30 * time.Second,
		},
	}
}

// Load reads path over the defaults, then applies the environment.
// A missing DefaultPath is not an error; any other missing file is.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Store.Kind {
	case StoreMemory, StoreRedis:
	case StoreFile, StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("%w for %s", ErrMissingPath, c.Store.Kind)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Store.Kind)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return ErrInvalidFormat
	}
	if c.Store.EncryptionKey != "" {
		if _, err := c.Store.Keys(); err != nil {
			return err
		}
	}
	return nil
}

// Keys decodes the active encryption key followed by the fallback keys.
func (s StoreConfig) Keys() ([][]byte, error) {
	all := append([]string{s.EncryptionKey}, s.FallbackKeys...)
	keys := make([][]byte, 0, len(all))
	for _, k := range all {
		b, err := hex.DecodeString(k)
		if err != nil || len(b) != 32 {
			return nil, ErrInvalidKey
		}
		keys = append(keys, b)
	}
	return keys, nil
}
