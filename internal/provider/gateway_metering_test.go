// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

// These tests exercise the Gateway against the real metering.Accumulator,
// so they live in an external test package to avoid a provider<->metering
// import cycle.
package provider_test

import (
	"context"
	"testing"

	"github.com/conductor-ai/conductor/internal/metering"
	"github.com/conductor-ai/conductor/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cannedEndpoint returns a fixed response and a fixed stream; no errors.
type cannedEndpoint struct {
	resp *provider.Response
}

func (c *cannedEndpoint) Name() string { return "canned" }

func (c *cannedEndpoint) Complete(_ context.Context, _ provider.Request) (*provider.Response, error) {
	if c.resp != nil {
		return c.resp, nil
	}
	return &provider.Response{Content: "ok"}, nil
}

func (c *cannedEndpoint) Stream(_ context.Context, _ provider.Request) (<-chan provider.Event, error) {
	ch := make(chan provider.Event, 4)
	ch <- provider.Event{Type: provider.EventTypeTextDelta, Text: "streamed"}
	ch <- provider.Event{Type: provider.EventTypeDone}
	close(ch)
	return ch, nil
}

func (c *cannedEndpoint) Close() error { return nil }

func TestGateway_RecordsReportedUsage(t *testing.T) {
	rec := metering.NewAccumulator()
	ep := &cannedEndpoint{
		resp: &provider.Response{
			Content: "hello",
			Usage:   &provider.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		},
	}
	gw, err := provider.NewGateway(provider.GatewayConfig{Endpoint: ep, Recorder: rec})
	require.NoError(t, err)

	_, err = gw.Complete(context.Background(), provider.Request{Model: "m"})
	require.NoError(t, err)

	total := rec.Total("m")
	assert.Equal(t, 10, total.InputTokens)
	assert.Equal(t, 5, total.OutputTokens)
	assert.False(t, total.Estimated)
}

func TestGateway_EstimatesUsageWhenStreamingReportsNone(t *testing.T) {
	rec := metering.NewAccumulator()
	ep := &cannedEndpoint{}
	gw, err := provider.NewGateway(provider.GatewayConfig{Endpoint: ep, Recorder: rec})
	require.NoError(t, err)

	ch, err := gw.Stream(context.Background(), provider.Request{
		Model:    "m",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "What is the answer to everything?"}},
	})
	require.NoError(t, err)
	for range ch {
	}

	total := rec.Total("m")
	assert.True(t, total.Estimated)
	assert.Positive(t, total.InputTokens)
	assert.Positive(t, total.OutputTokens)
}
