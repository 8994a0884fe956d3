// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

// Package engine wires the orchestration loop, the provider router, and
// the tool registry into the services the HTTP layer consumes.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/conductor-ai/conductor/internal/agent"
	"github.com/conductor-ai/conductor/internal/provider"
	"github.com/conductor-ai/conductor/internal/server"
	"github.com/conductor-ai/conductor/internal/store"
	"github.com/conductor-ai/conductor/internal/tools"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// Config holds Engine dependencies.
type Config struct {
	Caller    agent.ModelCaller
	Tools     *tools.Registry
	Providers *provider.Registry
	Logger    *slog.Logger

	// Store persists finished runs when set.
	Store store.RunStore

	// SystemPrompt seeds every run's message list.
	SystemPrompt string
	// HistoryTurns bounds replayed conversation history. Zero uses the
	// composer default.
	HistoryTurns int
	// MaxIterations overrides the adaptive loop bound when positive.
	MaxIterations int
}

// Engine implements the server's run, tool, and provider services on top
// of the agent loop.
type Engine struct {
	caller        agent.ModelCaller
	tools         *tools.Registry
	providers     *provider.Registry
	logger        *slog.Logger
	store         store.RunStore
	composer      agent.Composer
	maxIterations int
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Caller == nil {
		return nil, conderr.New(conderr.CodeServerConfigInvalid, "model caller is required")
	}
	if cfg.Tools == nil {
		cfg.Tools = tools.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		caller:    cfg.Caller,
		tools:     cfg.Tools,
		providers: cfg.Providers,
		logger:    cfg.Logger,
		store:     cfg.Store,
		composer: agent.Composer{
			SystemPrompt: cfg.SystemPrompt,
			HistoryTurns: cfg.HistoryTurns,
		},
		maxIterations: cfg.MaxIterations,
	}, nil
}

// Run executes a run to completion and returns the final result.
func (e *Engine) Run(ctx context.Context, in server.RunInput) (*server.RunOutput, error) {
	runner, err := e.newRunner(agent.NopSink{})
	if err != nil {
		return nil, err
	}

	result, err := runner.Analyze(ctx, e.analyzeRequest(in, false))
	if err != nil {
		return nil, err
	}
	e.record(ctx, in, result)
	return runOutput(result), nil
}

// StreamRun executes a run while forwarding progress events. The events
// channel is closed when the run ends.
func (e *Engine) StreamRun(ctx context.Context, in server.RunInput, events chan<- server.SSEEvent) {
	defer close(events)

	sink := agent.NewChanSink(200)
	runner, err := e.newRunner(sink)
	if err != nil {
		events <- errorEvent(err)
		return
	}

	done := make(chan struct{})
	var result *agent.AnalyzeResult
	var runErr error
	go func() {
		defer close(done)
		defer sink.Close()
		result, runErr = runner.Analyze(ctx, e.analyzeRequest(in, true))
	}()

	for ev := range sink.Events() {
		events <- sseEvent(ev)
	}
	<-done

	if runErr != nil {
		events <- errorEvent(runErr)
		return
	}
	e.record(ctx, in, result)
	// The final answer already went out as the finished event; nothing
	// more to send. Result is logged for the non-streaming fields.
	e.logger.Debug("streamed run finished",
		slog.String("run_id", result.RunID),
		slog.String("outcome", string(result.Outcome)),
	)
}

// record persists a finished run. Persistence failures are logged, not
// surfaced; the caller already has the answer.
func (e *Engine) record(ctx context.Context, in server.RunInput, result *agent.AnalyzeResult) {
	if e.store == nil {
		return
	}

	rec := &store.RunRecord{
		ID:             result.RunID,
		Instruction:    in.Instruction,
		Model:          in.Model,
		Content:        result.Content,
		Outcome:        string(result.Outcome),
		Iterations:     result.Iterations,
		InputTokens:    result.Usage.InputTokens,
		OutputTokens:   result.Usage.OutputTokens,
		TotalTokens:    result.Usage.TotalTokens,
		EstimatedUsage: result.Usage.Estimated,
		CreatedAt:      time.Now().UTC(),
	}

	// Aborted runs arrive with a canceled context; persist anyway.
	if err := e.store.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Warn("persisting run", slog.String("run_id", result.RunID), slog.Any("error", err))
	}
}

// GetRun returns a persisted run.
func (e *Engine) GetRun(ctx context.Context, id string) (*server.StoredRun, error) {
	if e.store == nil {
		return nil, conderr.Errorf(conderr.CodeStoreNotFound, "run %s not found", id)
	}

	rec, err := e.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	return &server.StoredRun{
		RunOutput: server.RunOutput{
			RunID:      rec.ID,
			Content:    rec.Content,
			Outcome:    rec.Outcome,
			Iterations: rec.Iterations,
			Usage: server.UsageOutput{
				InputTokens:  rec.InputTokens,
				OutputTokens: rec.OutputTokens,
				TotalTokens:  rec.TotalTokens,
				Estimated:    rec.EstimatedUsage,
			},
		},
		Instruction: rec.Instruction,
		Model:       rec.Model,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

// ListRuns returns persisted runs ordered newest first.
func (e *Engine) ListRuns(ctx context.Context, limit, offset int) ([]server.RunSummary, error) {
	if e.store == nil {
		return nil, nil
	}

	recs, err := e.store.ListRuns(ctx, store.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}

	out := make([]server.RunSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, server.RunSummary{
			RunID:       rec.ID,
			Instruction: rec.Instruction,
			Model:       rec.Model,
			Outcome:     rec.Outcome,
			CreatedAt:   rec.CreatedAt,
		})
	}
	return out, nil
}

// List returns summaries of all registered tools.
func (e *Engine) List(_ context.Context) []server.ToolSummary {
	names := e.tools.Names()
	out := make([]server.ToolSummary, 0, len(names))
	for _, name := range names {
		t, ok := e.tools.Lookup(name)
		if !ok {
			continue
		}
		out = append(out, server.ToolSummary{
			Name:        name,
			Description: t.Description(),
			Category:    string(e.tools.CategoryOf(name)),
			Timeout:     e.tools.TimeoutFor(name).String(),
		})
	}
	return out
}

// availabilityReporter is implemented by endpoints that track health.
// Endpoints without it are reported as available.
type availabilityReporter interface {
	Available(ctx context.Context) bool
}

// Status reports availability for each registered provider endpoint.
func (e *Engine) Status(ctx context.Context) []server.ProviderStatus {
	if e.providers == nil {
		return nil
	}
	eps := e.providers.Endpoints()
	out := make([]server.ProviderStatus, 0, len(eps))
	for _, ep := range eps {
		available := true
		if reporter, ok := ep.(availabilityReporter); ok {
			available = reporter.Available(ctx)
		}
		out = append(out, server.ProviderStatus{
			Name:      ep.Name(),
			Available: available,
		})
	}
	return out
}

func (e *Engine) newRunner(sink agent.Sink) (*agent.Runner, error) {
	return agent.NewRunner(agent.RunnerConfig{
		Caller:   e.caller,
		Registry: e.tools,
		Composer: e.composer,
		Sink:     sink,
		Logger:   e.logger,
	})
}

func (e *Engine) analyzeRequest(in server.RunInput, stream bool) agent.AnalyzeRequest {
	history := make([]provider.Message, 0, len(in.History))
	for _, turn := range in.History {
		history = append(history, provider.Message{
			Role:    provider.Role(turn.Role),
			Content: turn.Content,
		})
	}

	attachments := make([]agent.Attachment, 0, len(in.Attachments))
	for _, att := range in.Attachments {
		attachments = append(attachments, agent.Attachment{
			Name:     att.Name,
			MimeType: att.MediaType,
			URL:      att.URL,
		})
	}

	maxIterations := e.maxIterations
	if in.MaxIterations > 0 {
		maxIterations = in.MaxIterations
	}

	return agent.AnalyzeRequest{
		Instruction:   in.Instruction,
		History:       history,
		Attachments:   attachments,
		Model:         in.Model,
		MaxIterations: maxIterations,
		Stream:        stream,
	}
}

func runOutput(result *agent.AnalyzeResult) *server.RunOutput {
	return &server.RunOutput{
		RunID:      result.RunID,
		Content:    result.Content,
		Outcome:    string(result.Outcome),
		Iterations: result.Iterations,
		Usage: server.UsageOutput{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
			TotalTokens:  result.Usage.TotalTokens,
			Estimated:    result.Usage.Estimated,
		},
	}
}

func sseEvent(ev agent.ProgressEvent) server.SSEEvent {
	data, err := json.Marshal(ev)
	if err != nil {
		data = []byte(`{"kind":"error","error":"event serialization failed"}`)
	}
	return server.SSEEvent{Event: string(ev.Kind), Data: string(data)}
}

func errorEvent(err error) server.SSEEvent {
	data, _ := json.Marshal(map[string]string{
		"kind":  string(agent.EventError),
		"error": err.Error(),
	})
	return server.SSEEvent{Event: string(agent.EventError), Data: string(data)}
}
