// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

// Package store persists finished orchestration runs so they can be
// inspected after the fact. Backends register themselves by name; the
// sqlite backend is the default, with an in-memory backend for tests
// and ephemeral deployments.
package store

import (
	"context"
	"time"
)

// RunRecord is one finished run as persisted by a RunStore.
type RunRecord struct {
	ID          string
	Instruction string
	Model       string
	Content     string
	Outcome     string
	Iterations  int

	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	EstimatedUsage bool

	CreatedAt time.Time
}

// ListOpts controls pagination for ListRuns.
type ListOpts struct {
	Limit  int
	Offset int
}

// RunStore persists and retrieves finished runs.
type RunStore interface {
	// SaveRun persists a finished run. The record ID must be non-empty
	// and unique.
	SaveRun(ctx context.Context, rec *RunRecord) error
	// GetRun returns the run with the given ID, or a not-found error.
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	// ListRuns returns runs ordered newest first.
	ListRuns(ctx context.Context, opts ListOpts) ([]*RunRecord, error)
	// Close releases backend resources.
	Close() error
}
