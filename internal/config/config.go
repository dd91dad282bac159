// Package config loads relay configuration from an optional YAML file plus
// RELAY_-prefixed environment variables, env taking precedence.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	Agent   AgentConfig   `koanf:"agent"`
	Cache   CacheConfig   `koanf:"cache"`
	Auth    AuthConfig    `koanf:"auth"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// AgentConfig points at the upstream agent runner.
type AgentConfig struct {
	BaseURL string `koanf:"base_url"`
}

// CacheConfig bounds the in-memory session cache.
type CacheConfig struct {
	Size int `koanf:"size"`
}

type AuthConfig struct {
	Enabled     bool               `koanf:"enabled"`
	Credentials []CredentialConfig `koanf:"credentials"`
}

type CredentialConfig struct {
	Name    string `koanf:"name"`
	KeyHash string `koanf:"key_hash"`
}

// Load reads configuration. Path may be empty or point at a YAML file; env
// vars with the RELAY_ prefix override file values (RELAY_SERVER__PORT maps
// to server.port).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("RELAY_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "RELAY_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "sqlite")
	}
	if !k.Exists("storage.sqlite.path") {
		k.Set("storage.sqlite.path", "./data/relay.db")
	}
	if !k.Exists("cache.size") {
		k.Set("cache.size", 128)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Resolve ${VAR} references in string fields loaded from the file
	cfg.Agent.BaseURL = substituteEnvVars(cfg.Agent.BaseURL)
	cfg.Storage.SQLite.Path = substituteEnvVars(cfg.Storage.SQLite.Path)

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnvVars replaces ${VAR} references with the environment value,
// or the empty string when the variable is undefined.
func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
