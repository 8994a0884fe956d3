// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conductor-ai/conductor/internal/secrets"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// configDoc is the YAML layout written by conductor init. Kept separate
// from config.Config so the generated file only contains the sections a
// fresh setup needs.
type configDoc struct {
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
	Providers map[string]providerDoc `yaml:"providers"`
	Models    struct {
		Default string `yaml:"default"`
	} `yaml:"models"`
	Storage struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"storage"`
}

type providerDoc struct {
	APIKey string `yaml:"api_key"`
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter conductor.yaml",
		Long: `Generate a starter configuration for one provider. With --api-key the
key is stored in the OS keyring and the config references it as a
keyring:// URI, so no secret is written in plain text.`,
		RunE: runInit,
	}

	cmd.Flags().String("provider", "anthropic", "provider to configure (openai, anthropic, google)")
	cmd.Flags().String("api-key", "", "API key to store in the OS keyring")
	cmd.Flags().StringP("output", "o", "conductor.yaml", "where to write the config")
	cmd.Flags().Bool("force", false, "overwrite an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	providerName, _ := cmd.Flags().GetString("provider")
	apiKey, _ := cmd.Flags().GetString("api-key")
	output, _ := cmd.Flags().GetString("output")
	force, _ := cmd.Flags().GetBool("force")

	defaultModel, ok := defaultModels[providerName]
	if !ok {
		return conderr.Errorf(conderr.CodeCLIInputInvalid,
			"unknown provider %q (supported: %s)", providerName, strings.Join(providerNames(), ", "))
	}

	if !force {
		if _, err := os.Stat(output); err == nil {
			return conderr.Errorf(conderr.CodeCLIInputInvalid,
				"config file already exists at %s; use --force to overwrite", output)
		}
	}

	keyRef := "env://" + strings.ToUpper(providerName) + "_API_KEY"
	if apiKey != "" {
		name := providerName + "-api-key"
		if err := secretStoreFactory().Store(secrets.DefaultService, name, apiKey); err != nil {
			return err
		}
		keyRef = fmt.Sprintf("keyring://%s/%s", secrets.DefaultService, name)
	}

	var doc configDoc
	doc.Server.Listen = "127.0.0.1:18990"
	doc.Providers = map[string]providerDoc{providerName: {APIKey: keyRef}}
	doc.Models.Default = defaultModel
	doc.Storage.Backend = "sqlite"
	doc.Storage.Path = "conductor.db"

	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return conderr.Wrapf(err, conderr.CodeCLISetupFailure, "encoding config")
	}

	if err := os.WriteFile(output, raw, 0o600); err != nil {
		return conderr.Wrapf(err, conderr.CodeCLISetupFailure, "writing config to %s", output)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", output)
	if apiKey == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s or rerun with --api-key to store the key in the keyring.\n",
			strings.TrimPrefix(keyRef, "env://"))
	}
	return nil
}

var defaultModels = map[string]string{
	"anthropic": "anthropic/claude-sonnet-4-5",
	"openai":    "openai/gpt-4o",
	"google":    "google/gemini-2.0-flash",
}

func providerNames() []string {
	return []string{"anthropic", "google", "openai"}
}
