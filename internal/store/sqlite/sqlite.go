// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

// Package sqlite backs the run store with a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/conductor-ai/conductor/internal/store"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", func(path string) (store.RunStore, error) {
		return NewRunStore(path)
	})
}

// Compile-time interface check.
var _ store.RunStore = (*RunStore)(nil)

// RunStore implements store.RunStore backed by SQLite.
type RunStore struct {
	db *sql.DB
}

// NewRunStore opens (or creates) a SQLite database at dbPath and
// initialises the runs table.
func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, conderr.Wrapf(err, conderr.CodeStoreOpenFailure, "opening sqlite db at %s", dbPath)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, conderr.Wrapf(err, conderr.CodeStoreOpenFailure, "pinging sqlite db at %s", dbPath)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, conderr.Wrapf(err, conderr.CodeStoreOpenFailure, "migrating sqlite db at %s", dbPath)
	}

	return &RunStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	instruction   TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	outcome       TEXT NOT NULL,
	iterations    INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens  INTEGER NOT NULL DEFAULT 0,
	estimated     INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

func (s *RunStore) SaveRun(ctx context.Context, rec *store.RunRecord) error {
	if rec == nil || rec.ID == "" {
		return conderr.New(conderr.CodeStoreInvalidInput, "run record requires an ID")
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const q = `INSERT INTO runs (id, instruction, model, content, outcome, iterations,
input_tokens, output_tokens, total_tokens, estimated, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		rec.ID,
		rec.Instruction,
		rec.Model,
		rec.Content,
		rec.Outcome,
		rec.Iterations,
		rec.InputTokens,
		rec.OutputTokens,
		rec.TotalTokens,
		boolToInt(rec.EstimatedUsage),
		formatTime(createdAt),
	)
	if err != nil {
		return conderr.Wrapf(err, conderr.CodeStoreQueryFailure, "saving run %s", rec.ID)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id string) (*store.RunRecord, error) {
	const q = `SELECT id, instruction, model, content, outcome, iterations,
input_tokens, output_tokens, total_tokens, estimated, created_at
FROM runs WHERE id = ?`

	var rec store.RunRecord
	var estimated int
	var createdAt string

	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID,
		&rec.Instruction,
		&rec.Model,
		&rec.Content,
		&rec.Outcome,
		&rec.Iterations,
		&rec.InputTokens,
		&rec.OutputTokens,
		&rec.TotalTokens,
		&estimated,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, conderr.Errorf(conderr.CodeStoreNotFound, "run %s not found", id)
	}
	if err != nil {
		return nil, conderr.Wrapf(err, conderr.CodeStoreQueryFailure, "getting run %s", id)
	}

	rec.EstimatedUsage = estimated != 0
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}

func (s *RunStore) ListRuns(ctx context.Context, opts store.ListOpts) ([]*store.RunRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	const q = `SELECT id, instruction, model, content, outcome, iterations,
input_tokens, output_tokens, total_tokens, estimated, created_at
FROM runs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, limit, opts.Offset)
	if err != nil {
		return nil, conderr.Wrapf(err, conderr.CodeStoreQueryFailure, "listing runs")
	}
	defer rows.Close()

	var runs []*store.RunRecord
	for rows.Next() {
		var rec store.RunRecord
		var estimated int
		var createdAt string
		if err := rows.Scan(
			&rec.ID,
			&rec.Instruction,
			&rec.Model,
			&rec.Content,
			&rec.Outcome,
			&rec.Iterations,
			&rec.InputTokens,
			&rec.OutputTokens,
			&rec.TotalTokens,
			&estimated,
			&createdAt,
		); err != nil {
			return nil, conderr.Wrapf(err, conderr.CodeStoreQueryFailure, "scanning run row")
		}
		rec.EstimatedUsage = estimated != 0
		rec.CreatedAt = parseTime(createdAt)
		runs = append(runs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, conderr.Wrapf(err, conderr.CodeStoreQueryFailure, "iterating run rows")
	}

	return runs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
