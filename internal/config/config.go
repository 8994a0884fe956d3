// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

// Package config loads and validates the conductor configuration from
// file, environment, and defaults.
package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// Config is the top-level conductor configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    ModelsConfig              `mapstructure:"models"`
	Loop      LoopConfig                `mapstructure:"loop"`
	Tools     ToolsConfig               `mapstructure:"tools"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Logging   LoggingConfig             `mapstructure:"logging"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// ProviderConfig holds credentials and endpoint for a model provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// ModelsConfig controls model selection and gateway retry behavior.
type ModelsConfig struct {
	Default    string        `mapstructure:"default"`
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	CapDelay   time.Duration `mapstructure:"cap_delay"`
}

// LoopConfig bounds the reasoning loop.
type LoopConfig struct {
	MaxIterations int    `mapstructure:"max_iterations"`
	HistoryTurns  int    `mapstructure:"history_turns"`
	SystemPrompt  string `mapstructure:"system_prompt"`
}

// ToolsConfig sets tool execution timeouts by class.
type ToolsConfig struct {
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
}

// StorageConfig selects where finished runs are persisted.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix CONDUCTOR_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", "127.0.0.1:18990")
	v.SetDefault("models.default", "anthropic/claude-sonnet-4-5")
	v.SetDefault("models.max_retries", 3)
	v.SetDefault("models.base_delay", "1s")
	v.SetDefault("models.cap_delay", "10s")
	v.SetDefault("loop.max_iterations", 0) // 0 means adaptive
	v.SetDefault("loop.history_turns", 20)
	v.SetDefault("tools.default_timeout", "30s")
	v.SetDefault("tools.session_timeout", "5m")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "conductor.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Environment
	v.SetEnvPrefix("CONDUCTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, conderr.Errorf(conderr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, conderr.Errorf(conderr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, conderr.Errorf(conderr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors, collecting all
// issues rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateLoop()...)
	errs = append(errs, c.validateTools()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: server.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w",
			c.Server.Listen, err,
		))
		return errs
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateModels() []error {
	var errs []error

	if c.Models.Default == "" {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: models.default must not be empty"))
	} else if !strings.Contains(c.Models.Default, "/") {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: models.default must be in \"provider/model\" format, got %q",
			c.Models.Default,
		))
	} else if c.Providers != nil {
		// Cross-reference providers only when the section exists; a nil
		// map means defaults-only config, which is valid.
		name := providerFromModel(c.Models.Default)
		if _, ok := c.Providers[name]; !ok {
			errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
				"config: models.default %q references provider %q which is not configured",
				c.Models.Default, name,
			))
		}
	}

	if c.Models.MaxRetries < 0 {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: models.max_retries must not be negative, got %d", c.Models.MaxRetries))
	}
	if c.Models.BaseDelay <= 0 {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: models.base_delay must be positive, got %s", c.Models.BaseDelay))
	}
	if c.Models.CapDelay < c.Models.BaseDelay {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: models.cap_delay must be at least base_delay, got %s < %s",
			c.Models.CapDelay, c.Models.BaseDelay,
		))
	}

	for name, p := range c.Providers {
		if p.APIKey == "" {
			errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
				"config: providers.%s.api_key must not be empty", name))
		}
	}

	return errs
}

func (c *Config) validateLoop() []error {
	var errs []error

	if c.Loop.MaxIterations < 0 {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: loop.max_iterations must not be negative, got %d", c.Loop.MaxIterations))
	}
	if c.Loop.HistoryTurns <= 0 {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: loop.history_turns must be greater than 0, got %d", c.Loop.HistoryTurns))
	}

	return errs
}

func (c *Config) validateTools() []error {
	var errs []error

	if c.Tools.DefaultTimeout <= 0 {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: tools.default_timeout must be positive, got %s", c.Tools.DefaultTimeout))
	}
	if c.Tools.SessionTimeout <= 0 {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: tools.session_timeout must be positive, got %s", c.Tools.SessionTimeout))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory], got %q",
			c.Storage.Backend,
		))
	}
	if c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: storage.path must be set when storage.backend is sqlite"))
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of [debug, info, warn, error], got %q",
			c.Logging.Level,
		))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, conderr.Errorf(conderr.CodeConfigValidateInvalidValue,
			"config: logging.format must be one of [text, json], got %q",
			c.Logging.Format,
		))
	}

	return errs
}

// providerFromModel extracts the provider prefix from a "provider/model" string.
func providerFromModel(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}
