// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-ai/conductor/internal/config"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:18990", cfg.Server.Listen)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", cfg.Models.Default)
	assert.Equal(t, 3, cfg.Models.MaxRetries)
	assert.Equal(t, time.Second, cfg.Models.BaseDelay)
	assert.Equal(t, 20, cfg.Loop.HistoryTurns)
	assert.Equal(t, 30*time.Second, cfg.Tools.DefaultTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Tools.SessionTimeout)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "conductor.db", cfg.Storage.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "conductor.yaml")

	content := `
server:
  listen: "0.0.0.0:9999"
models:
  default: "openai/gpt-4.1"
providers:
  openai:
    api_key: "test-key"
`
	err := os.WriteFile(cfgPath, []byte(content), 0o600)
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Listen)
	assert.Equal(t, "openai/gpt-4.1", cfg.Models.Default)
	assert.Equal(t, "test-key", cfg.Providers["openai"].APIKey)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CONDUCTOR_SERVER_LISTEN", "10.0.0.1:8080")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Server.Listen)
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "conductor.yaml")

	content := `
server:
  listen: "not-an-address"
`
	err := os.WriteFile(cfgPath, []byte(content), 0o600)
	require.NoError(t, err)

	_, err = config.Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.listen")
}

// validConfig returns a minimal config that passes all validation.
func validConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Listen: "127.0.0.1:18990",
		},
		Providers: map[string]config.ProviderConfig{
			"anthropic": {APIKey: "test-key"},
		},
		Models: config.ModelsConfig{
			Default:    "anthropic/claude-sonnet-4-5",
			MaxRetries: 3,
			BaseDelay:  time.Second,
			CapDelay:   10 * time.Second,
		},
		Loop: config.LoopConfig{
			HistoryTurns: 20,
		},
		Tools: config.ToolsConfig{
			DefaultTimeout: 30 * time.Second,
			SessionTimeout: 5 * time.Minute,
		},
		Storage: config.StorageConfig{
			Backend: "sqlite",
			Path:    "conductor.db",
		},
		Logging: config.LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	errs := validConfig().Validate()
	assert.Empty(t, errs, "valid config should produce no validation errors")
}

func TestValidate_ServerListen(t *testing.T) {
	tests := []struct {
		name    string
		listen  string
		wantErr bool
	}{
		{"valid address", "127.0.0.1:8080", false},
		{"valid all interfaces", "0.0.0.0:9999", false},
		{"valid ipv6", "[::1]:8080", false},
		{"empty listen", "", true},
		{"missing port", "127.0.0.1", true},
		{"invalid port zero", "127.0.0.1:0", true},
		{"port too high", "127.0.0.1:70000", true},
		{"not a number", "127.0.0.1:abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Listen = tt.listen
			errs := cfg.Validate()
			if tt.wantErr {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), "server.listen")
			} else {
				for _, err := range errs {
					assert.NotContains(t, err.Error(), "server.listen")
				}
			}
		})
	}
}

func TestValidate_ModelsDefault(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		wantErr bool
	}{
		{"valid model", "anthropic/claude-sonnet-4-5", false},
		{"empty model", "", true},
		{"no slash", "plain-model", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Models.Default = tt.model
			errs := cfg.Validate()
			if tt.wantErr {
				require.NotEmpty(t, errs)
				found := false
				for _, err := range errs {
					if strings.Contains(err.Error(), "models.default") {
						found = true
					}
				}
				assert.True(t, found, "expected error about models.default, got: %v", errs)
			} else {
				for _, err := range errs {
					assert.NotContains(t, err.Error(), "models.default")
				}
			}
		})
	}
}

func TestValidate_ModelProviderReference(t *testing.T) {
	cfg := validConfig()
	cfg.Models.Default = "openai/gpt-4.1"
	// providers only has "anthropic", not "openai"
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "provider") && strings.Contains(err.Error(), "openai") {
			found = true
		}
	}
	assert.True(t, found, "expected error about missing provider openai, got: %v", errs)
}

func TestValidate_NilProvidersSkipsCrossReference(t *testing.T) {
	cfg := validConfig()
	cfg.Providers = nil
	errs := cfg.Validate()
	assert.Empty(t, errs, "defaults-only config without providers should validate")
}

func TestValidate_EmptyProviderKey(t *testing.T) {
	cfg := validConfig()
	cfg.Providers["anthropic"] = config.ProviderConfig{APIKey: ""}
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "providers.anthropic.api_key")
}

func TestValidate_RetryDelays(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		cap     time.Duration
		retries int
		wantErr string
	}{
		{"valid", time.Second, 10 * time.Second, 3, ""},
		{"zero base delay", 0, 10 * time.Second, 3, "models.base_delay"},
		{"cap below base", 2 * time.Second, time.Second, 3, "models.cap_delay"},
		{"negative retries", time.Second, 10 * time.Second, -1, "models.max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Models.BaseDelay = tt.base
			cfg.Models.CapDelay = tt.cap
			cfg.Models.MaxRetries = tt.retries
			errs := cfg.Validate()
			if tt.wantErr != "" {
				require.NotEmpty(t, errs)
				found := false
				for _, err := range errs {
					if strings.Contains(err.Error(), tt.wantErr) {
						found = true
					}
				}
				assert.True(t, found, "expected error about %s, got: %v", tt.wantErr, errs)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestValidate_LoopBounds(t *testing.T) {
	tests := []struct {
		name          string
		maxIterations int
		historyTurns  int
		wantErr       string
	}{
		{"adaptive iterations", 0, 20, ""},
		{"explicit iterations", 15, 20, ""},
		{"negative iterations", -1, 20, "loop.max_iterations"},
		{"zero history turns", 0, 0, "loop.history_turns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Loop.MaxIterations = tt.maxIterations
			cfg.Loop.HistoryTurns = tt.historyTurns
			errs := cfg.Validate()
			if tt.wantErr != "" {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), tt.wantErr)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestValidate_Storage(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		path    string
		wantErr string
	}{
		{"sqlite with path", "sqlite", "runs.db", ""},
		{"memory without path", "memory", "", ""},
		{"unknown backend", "postgres", "", "storage.backend"},
		{"sqlite without path", "sqlite", "", "storage.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Storage.Backend = tt.backend
			cfg.Storage.Path = tt.path
			errs := cfg.Validate()
			if tt.wantErr != "" {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), tt.wantErr)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestValidate_ToolTimeouts(t *testing.T) {
	cfg := validConfig()
	cfg.Tools.DefaultTimeout = 0
	cfg.Tools.SessionTimeout = -time.Second
	errs := cfg.Validate()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "tools.default_timeout")
	assert.Contains(t, errs[1].Error(), "tools.session_timeout")
}

func TestValidate_Logging(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr string
	}{
		{"valid", "debug", "json", ""},
		{"bad level", "verbose", "text", "logging.level"},
		{"bad format", "info", "logfmt", "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Logging.Level = tt.level
			cfg.Logging.Format = tt.format
			errs := cfg.Validate()
			if tt.wantErr != "" {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), tt.wantErr)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Listen: ""},
		Models: config.ModelsConfig{Default: ""},
		Loop:   config.LoopConfig{HistoryTurns: 0},
	}

	errs := cfg.Validate()
	// Should collect multiple errors, not stop at the first one
	assert.GreaterOrEqual(t, len(errs), 5, "expected at least 5 validation errors, got %d: %v", len(errs), errs)
}

func TestLoad_InvalidConfigFailsFast(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "conductor.yaml")

	content := `
server:
  listen: "not-valid"
logging:
  level: "bogus"
`
	err := os.WriteFile(cfgPath, []byte(content), 0o600)
	require.NoError(t, err)

	_, err = config.Load(cfgPath)
	require.Error(t, err, "Load should fail with invalid config")
	assert.Contains(t, err.Error(), "validating config")
}
