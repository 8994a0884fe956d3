// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package provider

import (
	"sort"
	"strings"
	"sync"

	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// Registry maps endpoint names to Endpoint implementations and resolves
// "provider/model" references.
type Registry struct {
	mu         sync.RWMutex
	endpoints  map[string]Endpoint
	defaultRef string
}

// NewRegistry creates a Registry. defaultRef is the "provider/model"
// reference used when a caller asks for "default" or the empty string.
func NewRegistry(defaultRef string) *Registry {
	return &Registry{
		endpoints:  make(map[string]Endpoint),
		defaultRef: defaultRef,
	}
}

// Register adds an endpoint under its name. Registering the same name
// twice is an error.
func (r *Registry) Register(ep Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := ep.Name()
	if _, exists := r.endpoints[name]; exists {
		return conderr.Errorf(conderr.CodeProviderRequestInvalid, "endpoint %q already registered", name)
	}
	r.endpoints[name] = ep
	return nil
}

// Resolve splits a "provider/model" reference and returns the endpoint
// plus the bare model name. "default" and "" resolve to the default ref.
func (r *Registry) Resolve(modelRef string) (Endpoint, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if modelRef == "" || modelRef == "default" {
		modelRef = r.defaultRef
	}

	idx := strings.Index(modelRef, "/")
	if idx <= 0 || idx == len(modelRef)-1 {
		return nil, "", conderr.Errorf(conderr.CodeProviderRequestInvalid,
			"model reference must be in \"provider/model\" format, got %q", modelRef)
	}

	name, model := modelRef[:idx], modelRef[idx+1:]
	ep, ok := r.endpoints[name]
	if !ok {
		return nil, "", conderr.New(conderr.CodeProviderNotFound,
			"no endpoint registered for provider "+name,
			conderr.FieldProvider(name),
		)
	}
	return ep, model, nil
}

// Endpoints returns registered endpoints sorted by name.
func (r *Registry) Endpoints() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	eps := make([]Endpoint, 0, len(names))
	for _, name := range names {
		eps = append(eps, r.endpoints[name])
	}
	return eps
}

// Close closes all registered endpoints, joining any errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, ep := range r.endpoints {
		if err := ep.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return conderr.Join(errs...)
}
