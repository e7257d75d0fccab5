// Package config loads the service configuration file: detector lexicon
// overrides, planned session length, generator knobs, and gateway settings.
// Secrets (API keys, tokens) stay in the environment and are not read here.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration.
type Config struct {
	Server    ServerConfig        `yaml:"server"`
	Store     StoreConfig         `yaml:"store"`
	Generator GeneratorConfig     `yaml:"generator"`
	Session   SessionConfig       `yaml:"session"`
	Lexicon   map[string][]string `yaml:"lexicon"`
}

// ServerConfig configures the HTTP/WebSocket gateway.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StoreConfig selects the session event log backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "memory", "sqlite3", or "postgres"
	DSN    string `yaml:"dsn"`
}

// GeneratorConfig configures the response generator.
type GeneratorConfig struct {
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// SessionConfig configures session-wide behavior.
type SessionConfig struct {
	// PlannedDuration is the total planned session length; a scheduled
	// break is suggested every third of it.
	PlannedDuration time.Duration `yaml:"planned_duration"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Store: StoreConfig{Driver: "memory"},
		Generator: GeneratorConfig{
			Timeout: 8 * time.Second,
		},
		Session: SessionConfig{PlannedDuration: 15 * time.Minute},
	}
}

// Load reads a YAML configuration file, layering it over the defaults.
// An empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Session.PlannedDuration <= 0 {
		cfg.Session.PlannedDuration = 15 * time.Minute
	}
	if cfg.Generator.Timeout <= 0 {
		cfg.Generator.Timeout = 8 * time.Second
	}
	return cfg, nil
}
