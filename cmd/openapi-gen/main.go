// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conductor-ai/conductor/internal/server"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, conderr.Errorf(conderr.CodeCLISetupFailure, "creating server: %w", err)
	}

	// Use no-op service stubs so all routes are registered for schema
	// discovery. Handlers are never invoked during spec generation.
	svc, err := server.NewServices(&stubRuns{}, &stubTools{},
		server.WithHistoryService(&stubHistory{}))
	if err != nil {
		return nil, conderr.Errorf(conderr.CodeCLISetupFailure, "creating services: %w", err)
	}
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubRuns struct{}

func (s *stubRuns) Run(context.Context, server.RunInput) (*server.RunOutput, error) {
	return nil, nil
}

func (s *stubRuns) StreamRun(_ context.Context, _ server.RunInput, events chan<- server.SSEEvent) {
	close(events)
}

type stubTools struct{}

func (s *stubTools) List(context.Context) []server.ToolSummary { return nil }

type stubHistory struct{}

func (s *stubHistory) GetRun(context.Context, string) (*server.StoredRun, error) {
	return nil, nil
}

func (s *stubHistory) ListRuns(context.Context, int, int) ([]server.RunSummary, error) {
	return nil, nil
}
