// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package provider

import (
	"context"
	"log/slog"
	"time"
	"unicode"

	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// Recorder accepts usage reports from the gateway. internal/metering
// provides the aggregating implementation.
type Recorder interface {
	Record(model string, usage Usage)
}

// nopRecorder discards all usage reports.
type nopRecorder struct{}

func (nopRecorder) Record(string, Usage) {}

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 1000 * time.Millisecond
	defaultCapDelay   = 10000 * time.Millisecond
)

// GatewayConfig holds Gateway dependencies and retry tuning.
type GatewayConfig struct {
	Endpoint   Endpoint
	Recorder   Recorder
	MaxRetries int
	BaseDelay  time.Duration
	CapDelay   time.Duration
}

// Gateway wraps an Endpoint with bounded exponential-backoff retry and
// usage metering. Rate-limit and server-error class failures are retried;
// request-validation failures propagate immediately. After exhausting
// retries the last error propagates to the caller unchanged.
type Gateway struct {
	endpoint   Endpoint
	recorder   Recorder
	maxRetries int
	baseDelay  time.Duration
	capDelay   time.Duration

	// sleepFunc is overridable for tests; it must respect ctx cancellation.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewGateway creates a Gateway. A nil Recorder is replaced with a no-op.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Endpoint == nil {
		return nil, conderr.New(conderr.CodeProviderRequestInvalid, "Endpoint is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.CapDelay <= 0 {
		cfg.CapDelay = defaultCapDelay
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}

	return &Gateway{
		endpoint:   cfg.Endpoint,
		recorder:   cfg.Recorder,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		capDelay:   cfg.CapDelay,
		sleepFunc:  sleepCtx,
	}, nil
}

// Name returns the wrapped endpoint's name.
func (g *Gateway) Name() string { return g.endpoint.Name() }

// Complete issues a non-streaming request with retry. Usage is recorded
// after a successful call; when the endpoint reports none, an estimate
// from input/output byte length is recorded instead.
func (g *Gateway) Complete(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := g.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = g.endpoint.Complete(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	usage := resp.Usage
	if usage == nil {
		est := estimateUsage(req, resp.Content)
		usage = &est
	}
	g.recorder.Record(req.Model, *usage)

	return resp, nil
}

// Stream issues a streaming request with retry on call initiation.
// Mid-stream failures surface as error events and are not re-issued.
// The returned channel mirrors the endpoint's events; usage is recorded
// at stream end, estimated from byte length when the endpoint reports none.
func (g *Gateway) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	var upstream <-chan Event
	err := g.withRetry(ctx, func() error {
		var callErr error
		upstream, callErr = g.endpoint.Stream(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 100)
	go g.meterStream(req, upstream, out)
	return out, nil
}

// meterStream forwards events while tallying output bytes so usage can be
// estimated if the endpoint never reports it.
func (g *Gateway) meterStream(req Request, upstream <-chan Event, out chan<- Event) {
	defer close(out)

	var outputText []byte
	var reported *Usage

	for ev := range upstream {
		switch ev.Type {
		case EventTypeTextDelta:
			outputText = append(outputText, ev.Text...)
		case EventTypeToolCallDelta:
			if ev.ToolCall != nil {
				outputText = append(outputText, ev.ToolCall.ArgsDelta...)
			}
		case EventTypeUsage:
			if ev.Usage != nil {
				reported = ev.Usage
			}
		case EventTypeDone:
			if ev.Usage != nil {
				reported = ev.Usage
			}
		}
		out <- ev
	}

	if reported != nil {
		g.recorder.Record(req.Model, *reported)
		return
	}
	g.recorder.Record(req.Model, estimateUsage(req, string(outputText)))
}

// withRetry runs fn with bounded exponential backoff:
// delay = min(base << attempt, cap). Only rate-limit and upstream-failure
// class errors are retried; everything else propagates immediately.
func (g *Gateway) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := g.baseDelay << (attempt - 1)
			if delay > g.capDelay {
				delay = g.capDelay
			}
			slog.Debug("retrying model call",
				slog.String("endpoint", g.endpoint.Name()),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			if err := g.sleepFunc(ctx, delay); err != nil {
				return lastErr
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// retryable reports whether an error belongs to the transient upstream
// class (rate limit or server error). Endpoints wrap upstream failures
// into these codes; anything else is treated as request-invalid.
func retryable(err error) bool {
	return conderr.IsRateLimited(err) || conderr.IsUpstreamFailure(err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// estimateUsage approximates token counts from byte length with a
// language-sensitive divisor: non-Latin scripts encode fewer characters
// per token, so their byte count divides by a smaller constant.
func estimateUsage(req Request, output string) Usage {
	var input []byte
	input = append(input, req.SystemPrompt...)
	for _, msg := range req.Messages {
		input = append(input, msg.Content...)
		for _, part := range msg.Parts {
			input = append(input, part.Text...)
		}
	}

	u := Usage{
		InputTokens:  estimateTokens(string(input)),
		OutputTokens: estimateTokens(output),
		Estimated:    true,
	}
	u.TotalTokens = u.InputTokens + u.OutputTokens
	return u
}

// estimateTokens divides byte length by 4 for mostly-Latin text and by 2
// when the majority of runes fall outside the Latin-1 range.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}

	var total, nonLatin int
	for _, r := range s {
		total++
		if r > unicode.MaxLatin1 {
			nonLatin++
		}
	}

	divisor := 4
	if nonLatin*2 > total {
		divisor = 2
	}

	tokens := len(s) / divisor
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
