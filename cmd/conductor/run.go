// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conductor-ai/conductor/internal/config"
	"github.com/conductor-ai/conductor/internal/server"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [instruction]",
		Short: "Execute one orchestration run from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().String("model", "", "model reference as provider/model (default from config)")
	cmd.Flags().Bool("progress", false, "print progress events while the run executes")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	config.WarnInsecurePermissions(path)

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := setupLogger(cfg, verbose)

	eng, cleanup, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	model, _ := cmd.Flags().GetString("model")
	input := server.RunInput{
		Instruction: strings.Join(args, " "),
		Model:       model,
	}

	progress, _ := cmd.Flags().GetBool("progress")
	if progress {
		return streamToStdout(cmd, eng, input)
	}

	out, err := eng.Run(cmd.Context(), input)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.Content)
	return nil
}

// streamToStdout runs with progress streaming, printing tool activity to
// stderr-style prefixed lines and the final answer last.
func streamToStdout(cmd *cobra.Command, runs server.RunService, input server.RunInput) error {
	events := make(chan server.SSEEvent, 64)
	go runs.StreamRun(cmd.Context(), input, events)

	var final string
	for ev := range events {
		var payload struct {
			Kind  string `json:"kind"`
			Tool  string `json:"tool"`
			Text  string `json:"text"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			continue
		}

		switch ev.Event {
		case "tool_call":
			fmt.Fprintf(cmd.OutOrStdout(), "-> %s\n", payload.Tool)
		case "tool_response":
			fmt.Fprintf(cmd.OutOrStdout(), "<- %s\n", payload.Tool)
		case "error":
			fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", payload.Error)
		case "finished":
			final = payload.Text
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), final)
	return nil
}
