// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Provider.Backend != "mock" {
		t.Errorf("Provider.Backend = %q, want mock", cfg.Provider.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
host = "0.0.0.0"
port = 9090

[provider]
backend = "deepseek"
deepseek_api_key = "sk-test"

[cache]
enabled = false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9090 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Provider.Backend != "deepseek" || cfg.Provider.DeepSeekAPIKey != "sk-test" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Cache.Enabled {
		t.Error("cache should be disabled")
	}
	// Unset fields keep their defaults.
	if cfg.Provider.DeepSeekModel != "deepseek-chat" {
		t.Errorf("DeepSeekModel = %q, want default", cfg.Provider.DeepSeekModel)
	}
	if cfg.Limits.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes = %d, want default", cfg.Limits.MaxBodyBytes)
	}
}

func TestLoadFromPathInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[provider]
backend = "no-such-backend"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected validation error for unknown backend")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANSWERD_PORT", "7070")
	t.Setenv("ANSWERD_BACKEND", "OpenAI")
	t.Setenv("ANSWERD_OPENAI_API_KEY", "sk-env")
	t.Setenv("ANSWERD_CACHE", "false")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Provider.Backend != "openai" {
		t.Errorf("Backend = %q, want openai", cfg.Provider.Backend)
	}
	if cfg.Provider.OpenAIAPIKey != "sk-env" {
		t.Errorf("OpenAIAPIKey = %q", cfg.Provider.OpenAIAPIKey)
	}
	if cfg.Cache.Enabled {
		t.Error("cache should be disabled via env")
	}
}

func TestEnvOverridesBadPortIgnored(t *testing.T) {
	t.Setenv("ANSWERD_PORT", "not-a-port")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want default 8000", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad backend", func(c *Config) { c.Provider.Backend = "llama" }},
		{"bad temperature", func(c *Config) { c.Provider.Temperature = 3.5 }},
		{"negative max tokens", func(c *Config) { c.Provider.MaxTokens = -1 }},
		{"zero timeout", func(c *Config) { c.Provider.TimeoutSecs = 0 }},
		{"negative cache size", func(c *Config) { c.Cache.MaxEntries = -1 }},
		{"negative rate", func(c *Config) { c.Limits.RequestsPerSecond = -1 }},
		{"zero body cap", func(c *Config) { c.Limits.MaxBodyBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	cfg := Default()
	cfg.Server.Port = 9999
	cfg.Provider.Backend = "openai"
	cfg.Provider.OpenAIAPIKey = "sk-save"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 0600", perm)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if loaded.Server.Port != 9999 || loaded.Provider.OpenAIAPIKey != "sk-save" {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}
