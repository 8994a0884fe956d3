// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package store

import (
	"sync"

	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// Factory creates a RunStore given a backend-specific path. The memory
// backend ignores the path.
type Factory func(path string) (RunStore, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). Goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Open creates a RunStore for the named backend. An empty backend name
// selects sqlite.
func Open(backend, path string) (RunStore, error) {
	if backend == "" {
		backend = "sqlite"
	}

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, conderr.Errorf(conderr.CodeStoreOpenFailure, "unsupported storage backend: %q", backend)
	}

	return factory(path)
}
