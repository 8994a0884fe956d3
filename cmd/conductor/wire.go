// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"log/slog"
	"os"

	"github.com/conductor-ai/conductor/internal/config"
	"github.com/conductor-ai/conductor/internal/engine"
	"github.com/conductor-ai/conductor/internal/metering"
	"github.com/conductor-ai/conductor/internal/provider"
	"github.com/conductor-ai/conductor/internal/provider/anthropic"
	"github.com/conductor-ai/conductor/internal/provider/google"
	"github.com/conductor-ai/conductor/internal/provider/openai"
	"github.com/conductor-ai/conductor/internal/secrets"
	"github.com/conductor-ai/conductor/internal/store"
	_ "github.com/conductor-ai/conductor/internal/store/sqlite" // registers the sqlite backend
	"github.com/conductor-ai/conductor/internal/tools"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// setupLogger installs a slog default logger per the logging config.
// The verbose flag forces debug level regardless of config.
func setupLogger(cfg *config.Config, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// buildEngine assembles the provider registry, router, run store, tool
// registry, and engine from config. The returned cleanup func closes
// provider endpoints and the run store; call it on shutdown.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, func() error, error) {
	keyStore := secrets.NewKeyringStore()

	registry := provider.NewRegistry(cfg.Models.Default)
	for name, pc := range cfg.Providers {
		apiKey, err := secrets.Resolve(keyStore, pc.APIKey)
		if err != nil {
			_ = registry.Close()
			return nil, nil, conderr.Wrapf(err, conderr.CodeCLISetupFailure,
				"resolving api key for provider %s", name)
		}
		pc.APIKey = apiKey

		ep, err := buildEndpoint(name, pc)
		if err != nil {
			_ = registry.Close()
			return nil, nil, err
		}
		if err := registry.Register(ep); err != nil {
			_ = registry.Close()
			return nil, nil, err
		}
	}

	runStore, err := store.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		_ = registry.Close()
		return nil, nil, err
	}

	cleanup := func() error {
		regErr := registry.Close()
		storeErr := runStore.Close()
		if regErr != nil {
			return regErr
		}
		return storeErr
	}

	router := provider.NewRouter(provider.RouterConfig{
		Registry:   registry,
		Recorder:   metering.NewAccumulator(),
		MaxRetries: cfg.Models.MaxRetries,
		BaseDelay:  cfg.Models.BaseDelay,
		CapDelay:   cfg.Models.CapDelay,
	})

	eng, err := engine.New(engine.Config{
		Caller:        router,
		Tools:         builtinTools(),
		Providers:     registry,
		Logger:        logger,
		Store:         runStore,
		SystemPrompt:  cfg.Loop.SystemPrompt,
		HistoryTurns:  cfg.Loop.HistoryTurns,
		MaxIterations: cfg.Loop.MaxIterations,
	})
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	return eng, cleanup, nil
}

func buildEndpoint(name string, pc config.ProviderConfig) (provider.Endpoint, error) {
	switch name {
	case "openai":
		return openai.New(openai.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	case "anthropic":
		return anthropic.New(anthropic.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	case "google":
		return google.New(google.Config{APIKey: pc.APIKey})
	default:
		return nil, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"unknown provider %q (supported: openai, anthropic, google)", name)
	}
}

// builtinTools registers the built-in tool set with an ephemeral signing
// key for artifact attestation. Key generation failure just disables
// signing.
func builtinTools() *tools.Registry {
	reg := tools.NewRegistry()
	var key ed25519.PrivateKey
	if _, generated, err := ed25519.GenerateKey(rand.Reader); err == nil {
		key = generated
	}
	tools.RegisterBuiltins(reg, key)
	return reg
}
