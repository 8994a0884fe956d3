// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

func init() {
	RegisterBackend("memory", func(string) (RunStore, error) {
		return NewMemoryStore(), nil
	})
}

// Compile-time interface check.
var _ RunStore = (*MemoryStore)(nil)

// MemoryStore keeps run records in memory. Records are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

// NewMemoryStore creates an empty in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: map[string]*RunRecord{}}
}

func (m *MemoryStore) SaveRun(_ context.Context, rec *RunRecord) error {
	if rec == nil || rec.ID == "" {
		return conderr.New(conderr.CodeStoreInvalidInput, "run record requires an ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[rec.ID]; exists {
		return conderr.Errorf(conderr.CodeStoreInvalidInput, "run %s already saved", rec.ID)
	}

	clone := *rec
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	m.runs[rec.ID] = &clone
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id string) (*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.runs[id]
	if !ok {
		return nil, conderr.Errorf(conderr.CodeStoreNotFound, "run %s not found", id)
	}
	clone := *rec
	return &clone, nil
}

func (m *MemoryStore) ListRuns(_ context.Context, opts ListOpts) ([]*RunRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	m.mu.RLock()
	all := make([]*RunRecord, 0, len(m.runs))
	for _, rec := range m.runs {
		clone := *rec
		all = append(all, &clone)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if opts.Offset >= len(all) {
		return nil, nil
	}
	all = all[opts.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) Close() error { return nil }
