// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

// Package tools defines the tool collaborator contract and a thread-safe
// registry the orchestration engine resolves tool calls against. Tool
// implementations themselves live outside the engine; the registry only
// carries names, schemas, categories, and execution timeouts.
package tools

import (
	"context"
	"sync"
	"time"

	"github.com/conductor-ai/conductor/internal/provider"
)

// Tool is the collaborator contract: given arguments, return an output
// value of any shape or an error. Outputs shaped {"error": "..."} are
// treated as failures by the dispatcher even without a returned error.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Category classifies tools for the dispatcher's guidance rules and
// timeout classes.
type Category string

const (
	// CategoryCompute marks tools that produce raw computed data.
	CategoryCompute Category = "compute"
	// CategoryArtifact marks tools that produce a user-facing artifact.
	CategoryArtifact Category = "artifact"
	// CategorySession marks session-spawning tools, which get a long timeout.
	CategorySession Category = "session"
	// CategoryOther is the default for everything else.
	CategoryOther Category = "other"
)

const (
	// DefaultTimeout applies to all tool classes except session.
	DefaultTimeout = 30 * time.Second
	// SessionTimeout applies to session-spawning tools.
	SessionTimeout = 5 * time.Minute
)

// SignedResult wraps a tool output with signature metadata. Tools that
// attest their results return this; the engine forwards the metadata in
// tool_response events without interpreting it.
type SignedResult struct {
	Output    any    `json:"output"`
	Signature string `json:"signature"`
	KeyID     string `json:"key_id,omitempty"`
}

type entry struct {
	tool     Tool
	category Category
	timeout  time.Duration
}

// RegisterOption customizes a tool registration.
type RegisterOption func(*entry)

// WithCategory sets the tool's category (default CategoryOther).
func WithCategory(c Category) RegisterOption {
	return func(e *entry) { e.category = c }
}

// WithTimeout overrides the tool's class timeout.
func WithTimeout(d time.Duration) RegisterOption {
	return func(e *entry) { e.timeout = d }
}

// Registry is a thread-safe in-memory tool registry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a tool. Re-registering a name replaces the previous entry.
func (r *Registry) Register(t Tool, opts ...RegisterOption) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{tool: t, category: CategoryOther}
	for _, opt := range opts {
		opt(e)
	}

	if _, exists := r.entries[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.entries[t.Name()] = e
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// CategoryOf returns the registered category, or CategoryOther for
// unknown tools.
func (r *Registry) CategoryOf(name string) Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return e.category
	}
	return CategoryOther
}

// TimeoutFor returns the execution timeout for a tool: an explicit
// per-tool override first, the session class timeout for session tools,
// the default for everything else.
func (r *Registry) TimeoutFor(name string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return DefaultTimeout
	}
	if e.timeout > 0 {
		return e.timeout
	}
	if e.category == CategorySession {
		return SessionTimeout
	}
	return DefaultTimeout
}

// Definitions returns tool definitions in registration order for
// inclusion in model requests.
func (r *Registry) Definitions() []provider.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]provider.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		defs = append(defs, provider.ToolDefinition{
			Name:        e.tool.Name(),
			Description: e.tool.Description(),
			InputSchema: e.tool.Schema(),
		})
	}
	return defs
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
