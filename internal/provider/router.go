// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package provider

import (
	"context"
	"sync"
	"time"

)

// RouterConfig holds Router dependencies and retry tuning shared by all
// endpoint gateways.
type RouterConfig struct {
	Registry   *Registry
	Recorder   Recorder
	MaxRetries int
	BaseDelay  time.Duration
	CapDelay   time.Duration
}

// Router resolves "provider/model" references against a Registry and
// dispatches to a retry-wrapped Gateway per endpoint. It is the model
// caller the orchestration engine talks to.
type Router struct {
	registry *Registry
	recorder Recorder
	retries  int
	base     time.Duration
	cap      time.Duration

	mu       sync.Mutex
	gateways map[string]*Gateway
}

// NewRouter creates a Router. A nil Recorder is replaced with a no-op.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &Router{
		registry: cfg.Registry,
		recorder: cfg.Recorder,
		retries:  cfg.MaxRetries,
		base:     cfg.BaseDelay,
		cap:      cfg.CapDelay,
		gateways: make(map[string]*Gateway),
	}
}

// Complete resolves the request's model reference and issues a
// non-streaming call through the endpoint's gateway.
func (r *Router) Complete(ctx context.Context, req Request) (*Response, error) {
	gw, model, err := r.route(req.Model)
	if err != nil {
		return nil, err
	}
	req.Model = model
	return gw.Complete(ctx, req)
}

// Stream resolves the request's model reference and issues a streaming
// call through the endpoint's gateway.
func (r *Router) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	gw, model, err := r.route(req.Model)
	if err != nil {
		return nil, err
	}
	req.Model = model
	return gw.Stream(ctx, req)
}

// route resolves a model reference and returns the endpoint's gateway,
// creating it on first use.
func (r *Router) route(modelRef string) (*Gateway, string, error) {
	ep, model, err := r.registry.Resolve(modelRef)
	if err != nil {
		return nil, "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	gw, ok := r.gateways[ep.Name()]
	if !ok {
		gw, err = NewGateway(GatewayConfig{
			Endpoint:   ep,
			Recorder:   r.recorder,
			MaxRetries: r.retries,
			BaseDelay:  r.base,
			CapDelay:   r.cap,
		})
		if err != nil {
			return nil, "", err
		}
		r.gateways[ep.Name()] = gw
	}
	return gw, model, nil
}
