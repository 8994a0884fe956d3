// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conductor-ai/conductor/internal/config"
	"github.com/conductor-ai/conductor/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the conductor HTTP server",
		Long:  "Load configuration, build the orchestration engine, and serve the run API until interrupted.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	path := configPath(cmd)
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	config.WarnInsecurePermissions(path)

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := setupLogger(cfg, verbose)

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	eng, cleanup, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Warn("closing engine resources", slog.Any("error", err))
		}
	}()

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	if err != nil {
		return err
	}

	svc, err := server.NewServices(eng, eng,
		server.WithProviderService(eng),
		server.WithHistoryService(eng),
	)
	if err != nil {
		return err
	}
	srv.RegisterServices(svc)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "conductor listening on %s\n", cfg.Server.Listen)
	logger.Info("server starting", slog.String("listen", cfg.Server.Listen))

	return srv.Start(ctx)
}
