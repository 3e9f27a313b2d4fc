// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for answerd.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides. Sources in order of precedence:
//   - ANSWERD_* environment variables
//   - the config file (--config flag, or ~/.answerd/config.toml)
//   - built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete answerd configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Provider ProviderConfig `toml:"provider"`
	Database DatabaseConfig `toml:"database"`
	Cache    CacheConfig    `toml:"cache"`
	Limits   LimitsConfig   `toml:"limits"`
}

// ServerConfig contains the HTTP listener configuration.
type ServerConfig struct {
	// Host is the bind address
	Host string `toml:"host"`
	// Port is the listen port
	Port int `toml:"port"`
}

// ProviderConfig contains model backend configuration.
type ProviderConfig struct {
	// Backend selects the model backend: "deepseek", "openai", "mock".
	// "mock" answers offline with canned responses.
	Backend string `toml:"backend"`
	// DeepSeekAPIKey is the DeepSeek API key
	DeepSeekAPIKey string `toml:"deepseek_api_key"`
	// DeepSeekModel is the DeepSeek model name
	DeepSeekModel string `toml:"deepseek_model"`
	// OpenAIAPIKey is the OpenAI API key
	OpenAIAPIKey string `toml:"openai_api_key"`
	// OpenAIModel is the OpenAI model name
	OpenAIModel string `toml:"openai_model"`
	// MaxTokens caps the completion length (0 = backend default)
	MaxTokens int `toml:"max_tokens"`
	// Temperature is the sampling temperature
	Temperature float64 `toml:"temperature"`
	// TimeoutSecs is the per-request backend timeout in seconds
	TimeoutSecs int `toml:"timeout_secs"`
}

// DatabaseConfig contains conversation storage configuration.
type DatabaseConfig struct {
	// Path is the SQLite database file (empty = ~/.answerd/conversations.db)
	Path string `toml:"path"`
}

// CacheConfig contains answer cache configuration.
type CacheConfig struct {
	// Enabled controls whether caching is active
	Enabled bool `toml:"enabled"`
	// MaxEntries is the maximum number of cached answers
	MaxEntries int `toml:"max_entries"`
	// TTLHours is the time-to-live for cache entries in hours (0 = no expiry)
	TTLHours int `toml:"ttl_hours"`
}

// LimitsConfig contains request limiting configuration.
type LimitsConfig struct {
	// RequestsPerSecond is the sustained per-client rate (0 disables limiting)
	RequestsPerSecond float64 `toml:"requests_per_second"`
	// Burst is the per-client burst allowance
	Burst int `toml:"burst"`
	// MaxBodyBytes caps the request body size
	MaxBodyBytes int64 `toml:"max_body_bytes"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Provider: ProviderConfig{
			Backend:       "mock",
			DeepSeekModel: "deepseek-chat",
			OpenAIModel:   "gpt-3.5-turbo",
			MaxTokens:     2048,
			Temperature:   0.7,
			TimeoutSecs:   60,
		},
		Database: DatabaseConfig{
			Path: "",
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 256,
			TTLHours:   24,
		},
		Limits: LimitsConfig{
			RequestsPerSecond: 5,
			Burst:             10,
			MaxBodyBytes:      1 << 20, // 1 MiB
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the answerd configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".answerd"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultDatabasePath returns the default SQLite database path.
func DefaultDatabasePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "conversations.db"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file if present,
// falling back to defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		path = ""
	}
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions to protect API keys.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# answerd configuration file")
	fmt.Fprintln(file, "# Generated by answerd - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies ANSWERD_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if host := os.Getenv("ANSWERD_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("ANSWERD_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		}
	}
	if backend := os.Getenv("ANSWERD_BACKEND"); backend != "" {
		c.Provider.Backend = strings.ToLower(backend)
	}
	if key := os.Getenv("ANSWERD_DEEPSEEK_API_KEY"); key != "" {
		c.Provider.DeepSeekAPIKey = key
	}
	if key := os.Getenv("ANSWERD_OPENAI_API_KEY"); key != "" {
		c.Provider.OpenAIAPIKey = key
	}
	if model := os.Getenv("ANSWERD_MODEL"); model != "" {
		c.Provider.DeepSeekModel = model
		c.Provider.OpenAIModel = model
	}
	if path := os.Getenv("ANSWERD_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if enabled := os.Getenv("ANSWERD_CACHE"); enabled != "" {
		c.Cache.Enabled = enabled == "1" || strings.ToLower(enabled) == "true"
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ValidationError{Field: "server.port", Message: fmt.Sprintf("must be 1-65535, got %d", c.Server.Port)}
	}

	switch c.Provider.Backend {
	case "deepseek", "openai", "mock":
	default:
		return ValidationError{Field: "provider.backend", Message: fmt.Sprintf("must be deepseek, openai, or mock, got %q", c.Provider.Backend)}
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		return ValidationError{Field: "provider.temperature", Message: fmt.Sprintf("must be 0-2, got %v", c.Provider.Temperature)}
	}
	if c.Provider.MaxTokens < 0 {
		return ValidationError{Field: "provider.max_tokens", Message: "must not be negative"}
	}
	if c.Provider.TimeoutSecs <= 0 {
		return ValidationError{Field: "provider.timeout_secs", Message: "must be positive"}
	}

	if c.Cache.MaxEntries < 0 {
		return ValidationError{Field: "cache.max_entries", Message: "must not be negative"}
	}
	if c.Cache.TTLHours < 0 {
		return ValidationError{Field: "cache.ttl_hours", Message: "must not be negative"}
	}

	if c.Limits.RequestsPerSecond < 0 {
		return ValidationError{Field: "limits.requests_per_second", Message: "must not be negative"}
	}
	if c.Limits.Burst < 0 {
		return ValidationError{Field: "limits.burst", Message: "must not be negative"}
	}
	if c.Limits.MaxBodyBytes <= 0 {
		return ValidationError{Field: "limits.max_body_bytes", Message: "must be positive"}
	}

	return nil
}
