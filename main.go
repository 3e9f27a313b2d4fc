// answerd - A question/answer HTTP service backed by LLM providers.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/answerd/internal/assistant"
	"github.com/jeranaias/answerd/internal/cache"
	"github.com/jeranaias/answerd/internal/config"
	"github.com/jeranaias/answerd/internal/provider"
	"github.com/jeranaias/answerd/internal/server"
	"github.com/jeranaias/answerd/internal/store"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.answerd/config.toml)")
	host := flag.String("host", "", "bind address (overrides config)")
	port := flag.Int("port", 0, "listen port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	backend := flag.String("backend", "", "model backend: deepseek, openai, mock (overrides config)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("answerd %s (%s)\n", Version, GitCommit)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("CONFIG_ERROR | %v", err)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *backend != "" {
		cfg.Provider.Backend = *backend
		if err := cfg.Validate(); err != nil {
			log.Fatalf("CONFIG_ERROR | %v", err)
		}
	}

	if err := run(cfg); err != nil {
		log.Fatalf("FATAL | %v", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func run(cfg *config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	backend, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	log.Printf("PROVIDER | backend=%s model=%s", backend.Name(), backend.Model())

	var answers *cache.AnswerCache
	if cfg.Cache.Enabled {
		answers = cache.New(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLHours)*time.Hour)
	}

	svc := assistant.New(st, backend, answers)

	srv := server.NewServer(svc, server.Options{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		MaxBodySize:       cfg.Limits.MaxBodyBytes,
		RequestsPerSecond: cfg.Limits.RequestsPerSecond,
		Burst:             cfg.Limits.Burst,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore opens the conversation store, falling back to an in-memory
// database when the configured path is unusable.
func openStore(cfg *config.Config) (*store.Store, error) {
	path := cfg.Database.Path
	if path == "" {
		defaultPath, err := config.DefaultDatabasePath()
		if err != nil {
			log.Printf("STORE_FALLBACK | no home directory, using in-memory store: %v", err)
			return store.OpenMemory()
		}
		path = defaultPath
	}
	return store.Open(path)
}

// buildProvider selects the model backend from configuration. A cloud
// backend without an API key degrades to the offline mock.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	timeout := time.Duration(cfg.Provider.TimeoutSecs) * time.Second

	switch cfg.Provider.Backend {
	case "deepseek":
		if cfg.Provider.DeepSeekAPIKey == "" {
			log.Printf("PROVIDER_FALLBACK | deepseek api key not configured, using mock backend")
			return provider.NewMock(), nil
		}
		return provider.NewDeepSeek(provider.ClientConfig{
			APIKey:      cfg.Provider.DeepSeekAPIKey,
			Model:       cfg.Provider.DeepSeekModel,
			MaxTokens:   cfg.Provider.MaxTokens,
			Temperature: cfg.Provider.Temperature,
			HTTPClient:  &http.Client{Timeout: timeout},
		}), nil
	case "openai":
		if cfg.Provider.OpenAIAPIKey == "" {
			log.Printf("PROVIDER_FALLBACK | openai api key not configured, using mock backend")
			return provider.NewMock(), nil
		}
		return provider.NewOpenAI(provider.ClientConfig{
			APIKey:      cfg.Provider.OpenAIAPIKey,
			Model:       cfg.Provider.OpenAIModel,
			MaxTokens:   cfg.Provider.MaxTokens,
			Temperature: cfg.Provider.Temperature,
			HTTPClient:  &http.Client{Timeout: timeout},
		}), nil
	case "mock":
		return provider.NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Provider.Backend)
	}
}
