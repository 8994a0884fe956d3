// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-ai/conductor/internal/store"
	"github.com/conductor-ai/conductor/internal/store/sqlite"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

func newTestStore(t *testing.T) *sqlite.RunStore {
	t.Helper()
	s, err := sqlite.NewRunStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id string, createdAt time.Time) *store.RunRecord {
	return &store.RunRecord{
		ID:             id,
		Instruction:    "convert the figures to euros",
		Model:          "openai/gpt-5",
		Content:        "42 EUR",
		Outcome:        "completed",
		Iterations:     3,
		InputTokens:    120,
		OutputTokens:   40,
		TotalTokens:    160,
		EstimatedUsage: true,
		CreatedAt:      createdAt,
	}
}

func TestRunStore_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := record("run-1", time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC))
	require.NoError(t, s.SaveRun(ctx, rec))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Instruction, got.Instruction)
	assert.Equal(t, rec.Model, got.Model)
	assert.Equal(t, rec.Content, got.Content)
	assert.Equal(t, rec.Outcome, got.Outcome)
	assert.Equal(t, rec.Iterations, got.Iterations)
	assert.Equal(t, rec.TotalTokens, got.TotalTokens)
	assert.True(t, got.EstimatedUsage)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestRunStore_SaveRejectsEmptyID(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveRun(context.Background(), &store.RunRecord{})
	require.Error(t, err)
	assert.True(t, conderr.IsInvalidInput(err))
}

func TestRunStore_SaveRejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, record("run-1", time.Now())))
	require.Error(t, s.SaveRun(ctx, record("run-1", time.Now())))
}

func TestRunStore_GetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, conderr.IsNotFound(err))
}

func TestRunStore_ListNewestFirstWithPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := record(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.SaveRun(ctx, rec))
	}

	runs, err := s.ListRuns(ctx, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, runs, 5)
	assert.Equal(t, "run-4", runs[0].ID)

	runs, err = s.ListRuns(ctx, store.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)
}

func TestRunStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")
	ctx := context.Background()

	s, err := sqlite.NewRunStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(ctx, record("run-1", time.Now().UTC())))
	require.NoError(t, s.Close())

	reopened, err := sqlite.NewRunStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "42 EUR", got.Content)
}

func TestOpen_SqliteBackendRegistered(t *testing.T) {
	s, err := store.Open("sqlite", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
