// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

// Package metering collects per-model token usage reported by the
// model gateway. Recording is strictly observational: a nil or absent
// recorder never affects control flow.
package metering

import (
	"sync"

	"github.com/conductor-ai/conductor/internal/provider"
)

// Recorder accepts usage reports from the gateway.
type Recorder interface {
	Record(model string, usage provider.Usage)
}

// Nop discards all usage reports.
type Nop struct{}

func (Nop) Record(string, provider.Usage) {}

// Accumulator aggregates usage per model. Safe for concurrent use.
type Accumulator struct {
	mu     sync.Mutex
	totals map[string]provider.Usage
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{totals: make(map[string]provider.Usage)}
}

// Record adds the usage to the model's running totals. The Estimated flag
// is sticky: once any estimated report arrives, the total is marked estimated.
func (a *Accumulator) Record(model string, usage provider.Usage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := a.totals[model]
	t.InputTokens += usage.InputTokens
	t.OutputTokens += usage.OutputTokens
	t.TotalTokens += usage.TotalTokens
	t.Estimated = t.Estimated || usage.Estimated
	a.totals[model] = t
}

// Total returns the accumulated usage for a model.
func (a *Accumulator) Total(model string) provider.Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totals[model]
}

// Totals returns a copy of all per-model totals.
func (a *Accumulator) Totals() map[string]provider.Usage {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]provider.Usage, len(a.totals))
	for model, usage := range a.totals {
		out[model] = usage
	}
	return out
}
