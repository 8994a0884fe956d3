// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package main

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root conductor command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "conductor",
		Short:         "Conversational tool-calling orchestration",
		Long:          "Conductor drives language models through a bounded tool-calling loop and always returns a substantive answer.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newToolsCmd(),
		newSecretCmd(),
		newInitCmd(),
		newVersionCmd(),
	)

	return root
}

// configPath resolves the config file: the --config flag first, then the
// CONDUCTOR_CONFIG environment variable, then a conductor.yaml in the
// working directory if one exists.
func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	if path := os.Getenv("CONDUCTOR_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("conductor.yaml"); err == nil {
		return "conductor.yaml"
	}
	return ""
}
