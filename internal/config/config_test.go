package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("Storage.Type = %q, want sqlite", cfg.Storage.Type)
	}
	if cfg.Storage.SQLite.Path != "./data/relay.db" {
		t.Errorf("Storage.SQLite.Path = %q", cfg.Storage.SQLite.Path)
	}
	if cfg.Cache.Size != 128 {
		t.Errorf("Cache.Size = %d, want 128", cfg.Cache.Size)
	}
	if cfg.Auth.Enabled {
		t.Error("Auth.Enabled = true, want disabled by default")
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
storage:
  type: memory
agent:
  base_url: http://localhost:4000
cache:
  size: 64
auth:
  enabled: true
  credentials:
    - name: ci
      key_hash: abc123
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Storage.Type = %q, want memory", cfg.Storage.Type)
	}
	if cfg.Agent.BaseURL != "http://localhost:4000" {
		t.Errorf("Agent.BaseURL = %q", cfg.Agent.BaseURL)
	}
	if cfg.Cache.Size != 64 {
		t.Errorf("Cache.Size = %d, want 64", cfg.Cache.Size)
	}
	if !cfg.Auth.Enabled || len(cfg.Auth.Credentials) != 1 {
		t.Fatalf("Auth = %+v", cfg.Auth)
	}
	if cfg.Auth.Credentials[0].Name != "ci" || cfg.Auth.Credentials[0].KeyHash != "abc123" {
		t.Errorf("Credentials[0] = %+v", cfg.Auth.Credentials[0])
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("RELAY_SERVER__PORT", "7070")
	t.Setenv("RELAY_STORAGE__TYPE", "memory")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Storage.Type = %q, want env override memory", cfg.Storage.Type)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("RELAY_TEST_HOST", "agent.internal")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no references", "http://localhost:4000", "http://localhost:4000"},
		{"single reference", "http://${RELAY_TEST_HOST}:4000", "http://agent.internal:4000"},
		{"undefined becomes empty", "http://${RELAY_UNDEFINED_VAR}/x", "http:///x"},
		{"not a reference", "cost is $100", "cost is $100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.in); got != tt.want {
				t.Errorf("substituteEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoad_SubstitutesAgentBaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "agent:\n  base_url: http://${RELAY_TEST_AGENT_HOST}:4000\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("RELAY_TEST_AGENT_HOST", "runner.local")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.BaseURL != "http://runner.local:4000" {
		t.Errorf("Agent.BaseURL = %q", cfg.Agent.BaseURL)
	}
}
