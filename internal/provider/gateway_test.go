// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package provider

import (
	"context"
	"testing"
	"time"

	conderr "github.com/conductor-ai/conductor/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedEndpoint returns canned errors in order, then a success response.
type scriptedEndpoint struct {
	errs  []error
	calls int
	resp  *Response
}

func (s *scriptedEndpoint) Name() string { return "scripted" }

func (s *scriptedEndpoint) Complete(_ context.Context, _ Request) (*Response, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if s.resp != nil {
		return s.resp, nil
	}
	return &Response{Content: "ok"}, nil
}

func (s *scriptedEndpoint) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	ch := make(chan Event, 4)
	ch <- Event{Type: EventTypeTextDelta, Text: "streamed"}
	ch <- Event{Type: EventTypeDone}
	close(ch)
	return ch, nil
}

func (s *scriptedEndpoint) Close() error { return nil }

func newTestGateway(t *testing.T, ep Endpoint, rec Recorder) (*Gateway, *[]time.Duration) {
	t.Helper()

	gw, err := NewGateway(GatewayConfig{Endpoint: ep, Recorder: rec})
	require.NoError(t, err)

	var delays []time.Duration
	gw.sleepFunc = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return gw, &delays
}

func TestGateway_RetriesRateLimitThenSucceeds(t *testing.T) {
	ep := &scriptedEndpoint{
		errs: []error{conderr.New(conderr.CodeProviderRateLimited, "429 too many requests")},
	}
	gw, delays := newTestGateway(t, ep, nil)

	resp, err := gw.Complete(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, ep.calls)
	assert.Equal(t, []time.Duration{1 * time.Second}, *delays)
}

func TestGateway_BackoffScheduleDoublesAndCaps(t *testing.T) {
	ep := &scriptedEndpoint{
		errs: []error{
			conderr.New(conderr.CodeProviderUpstreamFailure, "500"),
			conderr.New(conderr.CodeProviderUpstreamFailure, "502"),
			conderr.New(conderr.CodeProviderUpstreamFailure, "503"),
		},
	}
	gw, delays := newTestGateway(t, ep, nil)

	_, err := gw.Complete(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, *delays)
}

func TestGateway_DoesNotRetryRequestInvalid(t *testing.T) {
	ep := &scriptedEndpoint{
		errs: []error{conderr.New(conderr.CodeProviderRequestInvalid, "404 not found")},
	}
	gw, delays := newTestGateway(t, ep, nil)

	_, err := gw.Complete(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.True(t, conderr.HasCode(err, conderr.CodeProviderRequestInvalid))
	assert.Equal(t, 1, ep.calls)
	assert.Empty(t, *delays)
}

func TestGateway_ExhaustedRetriesPropagateLastError(t *testing.T) {
	ep := &scriptedEndpoint{
		errs: []error{
			conderr.New(conderr.CodeProviderUpstreamFailure, "first"),
			conderr.New(conderr.CodeProviderUpstreamFailure, "second"),
			conderr.New(conderr.CodeProviderUpstreamFailure, "third"),
			conderr.New(conderr.CodeProviderUpstreamFailure, "last"),
		},
	}
	gw, _ := newTestGateway(t, ep, nil)

	_, err := gw.Complete(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last")
	assert.Equal(t, 4, ep.calls) // initial + 3 retries
}

func TestEstimateTokens_LanguageSensitiveDivisor(t *testing.T) {
	latin := "the quick brown fox jumps over the lazy dog"
	assert.Equal(t, len(latin)/4, estimateTokens(latin))

	// Non-Latin scripts divide byte length by 2 instead of 4.
	cjk := "猫が静かに窓辺で眠っている"
	assert.Equal(t, len(cjk)/2, estimateTokens(cjk))

	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("ab"))
}
