// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

// Package agent implements the tool-calling orchestration engine: message
// composition, the bounded reasoning loop, streaming accumulation, tool
// dispatch with run-scoped deduplication, and response synthesis.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime"

	"github.com/google/uuid"

	"github.com/conductor-ai/conductor/internal/provider"
	"github.com/conductor-ai/conductor/internal/tools"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

const (
	// defaultMaxIterations bounds the reasoning loop for ordinary tool sets.
	defaultMaxIterations = 10
	// extendedMaxIterations applies when the combined tool schemas are
	// large, a proxy for complex toolsets that need more reasoning turns.
	extendedMaxIterations = 25
	// largeSchemaBytes is the serialized-schema size above which the
	// extended iteration bound kicks in.
	largeSchemaBytes = 8192
)

// Outcome states how a run ended.
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeRanOutOfTurns Outcome = "ran_out_of_turns"
	OutcomeAborted       Outcome = "aborted"
)

// AnalyzeRequest is one orchestration run.
type AnalyzeRequest struct {
	Instruction string
	History     []provider.Message
	Attachments []Attachment
	Model       string
	// MaxIterations overrides the adaptive bound when positive.
	MaxIterations int
	// Stream selects the streaming model path; progress events carry
	// incremental text either way.
	Stream bool
}

// AnalyzeResult is the outcome of a run. Content is never blank for a
// non-aborted run.
type AnalyzeResult struct {
	RunID      string
	Content    string
	Messages   []provider.Message
	Outcome    Outcome
	Iterations int
	Usage      provider.Usage
}

// RunnerConfig holds Runner dependencies and extension points.
type RunnerConfig struct {
	Caller   ModelCaller
	Registry *tools.Registry
	Composer Composer
	Sink     Sink
	Logger   *slog.Logger

	// Rules replaces the default guidance rules when non-nil.
	Rules []GuidanceRule
	// HandleUnroutedTool resolves calls to tools the registry does not
	// know. Nil means such calls fail with an unknown-tool error output.
	HandleUnroutedTool UnroutedHandler
	// ResolveTools overrides the tool definitions sent to the model.
	// Nil means the registry's definitions in registration order.
	ResolveTools func() []provider.ToolDefinition
}

// Runner drives the reasoning loop: call the model, execute requested
// tools, feed results back, repeat until the model answers in text or
// the iteration bound is hit. Each Analyze call owns its state; a Runner
// is safe for concurrent runs.
type Runner struct {
	caller       ModelCaller
	registry     *tools.Registry
	composer     Composer
	sink         Sink
	logger       *slog.Logger
	dispatcher   *Dispatcher
	resolveTools func() []provider.ToolDefinition
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Caller == nil {
		return nil, conderr.New(conderr.CodeAgentLoopInvalidInput, "Caller is required")
	}
	if cfg.Registry == nil {
		cfg.Registry = tools.NewRegistry()
	}
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	resolve := cfg.ResolveTools
	if resolve == nil {
		resolve = cfg.Registry.Definitions
	}

	return &Runner{
		caller:   cfg.Caller,
		registry: cfg.Registry,
		composer: cfg.Composer,
		sink:     cfg.Sink,
		logger:   cfg.Logger,
		dispatcher: NewDispatcher(DispatcherConfig{
			Registry:           cfg.Registry,
			Sink:               cfg.Sink,
			Rules:              cfg.Rules,
			HandleUnroutedTool: cfg.HandleUnroutedTool,
		}),
		resolveTools: resolve,
	}, nil
}

// Analyze executes one run. It returns an error only for invalid input;
// model and tool failures degrade through synthesis so the caller still
// receives a usable result. Context cancellation ends the run with
// OutcomeAborted and no error.
func (r *Runner) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	composed, err := r.composer.Compose(req.History, req.Instruction, req.Attachments)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	definitions := r.resolveTools()
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = adaptiveIterations(definitions)
	}

	rs := newRunState(runID, composed, maxIterations)
	emit(r.sink, ProgressEvent{Kind: EventStart, RunID: runID})
	r.logger.Info("run started",
		slog.String("run_id", runID),
		slog.String("model", req.Model),
		slog.Int("max_iterations", maxIterations),
	)

	var usage provider.Usage
	outcome := OutcomeRanOutOfTurns

	for rs.iteration = 1; rs.iteration <= rs.maxIterations; rs.iteration++ {
		if ctx.Err() != nil {
			outcome = OutcomeAborted
			break
		}

		result, callErr := r.callModel(ctx, req, rs, definitions)
		if callErr != nil {
			if conderr.IsInvalidInput(callErr) {
				return nil, callErr
			}
			if ctx.Err() != nil {
				outcome = OutcomeAborted
				break
			}
			// Transient exhaustion or stream failure: stop iterating and
			// let synthesis work with whatever the run gathered.
			r.logger.Warn("model call failed, ending loop",
				slog.String("run_id", runID),
				slog.Int("iteration", rs.iteration),
				slog.Any("error", callErr),
			)
			emit(r.sink, ProgressEvent{
				Kind:      EventError,
				RunID:     runID,
				Iteration: rs.iteration,
				Error:     callErr.Error(),
			})
			break
		}

		if result.Usage != nil {
			addUsage(&usage, *result.Usage)
		}

		rs.append(provider.Message{
			Role:      provider.RoleAssistant,
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		})

		calls := result.ToolCalls
		if len(calls) == 0 {
			calls = r.recoverFallbackCall(rs, result.Content)
		}

		if len(calls) == 0 {
			// The model is done, either with a real answer or with
			// filler that synthesis will replace below.
			outcome = OutcomeCompleted
			break
		}

		r.dispatcher.Dispatch(ctx, rs, calls)

		// Yield between iterations so concurrent runs interleave fairly.
		runtime.Gosched()
		if ctx.Err() != nil {
			outcome = OutcomeAborted
			break
		}
	}

	if ctx.Err() != nil {
		outcome = OutcomeAborted
	}

	iterations := rs.iteration
	if iterations > rs.maxIterations {
		iterations = rs.maxIterations
	}

	if outcome == OutcomeAborted {
		emit(r.sink, ProgressEvent{
			Kind:  EventError,
			RunID: runID,
			Error: "run aborted",
		})
		return &AnalyzeResult{
			RunID:      runID,
			Messages:   rs.runMessages(),
			Outcome:    OutcomeAborted,
			Iterations: iterations,
			Usage:      usage,
		}, nil
	}

	synth := Synthesizer{Caller: r.caller, Model: req.Model}
	content := synth.Ensure(ctx, rs)

	emit(r.sink, ProgressEvent{
		Kind:  EventFinished,
		RunID: runID,
		Text:  content,
	})
	r.logger.Info("run finished",
		slog.String("run_id", runID),
		slog.String("outcome", string(outcome)),
		slog.Int("iterations", iterations),
	)

	return &AnalyzeResult{
		RunID:      runID,
		Content:    content,
		Messages:   rs.runMessages(),
		Outcome:    outcome,
		Iterations: iterations,
		Usage:      usage,
	}, nil
}

// callModel performs one model turn over the run log, via the streaming
// path or a plain completion depending on the request.
func (r *Runner) callModel(ctx context.Context, req AnalyzeRequest, rs *runState, definitions []provider.ToolDefinition) (*StreamResult, error) {
	modelReq := provider.Request{
		Model:    req.Model,
		Messages: rs.messages,
		Tools:    definitions,
	}

	if req.Stream {
		events, err := r.caller.Stream(ctx, modelReq)
		if err != nil {
			return nil, err
		}
		acc := &streamAccumulator{sink: r.sink, runID: rs.runID, iteration: rs.iteration}
		return acc.consume(events)
	}

	resp, err := r.caller.Complete(ctx, modelReq)
	if err != nil {
		return nil, err
	}
	return fromResponse(resp), nil
}

// recoverFallbackCall rescues a turn where the model wrote a pseudo-code
// invocation of a known tool instead of a structured call.
func (r *Runner) recoverFallbackCall(rs *runState, content string) []provider.ToolCall {
	name, args, ok := parseFallbackCall(content, func(candidate string) bool {
		_, known := r.registry.Lookup(candidate)
		return known
	})
	if !ok {
		return nil
	}

	r.logger.Debug("recovered pseudo-code tool call",
		slog.String("run_id", rs.runID),
		slog.String("tool", name),
	)
	serialized, err := json.Marshal(args)
	if err != nil {
		serialized = []byte("{}")
	}
	return []provider.ToolCall{{
		ID:        "fb_" + uuid.NewString(),
		Name:      name,
		Arguments: string(serialized),
	}}
}

// adaptiveIterations picks the loop bound from the serialized size of the
// tool schemas offered to the model.
func adaptiveIterations(definitions []provider.ToolDefinition) int {
	encoded, err := json.Marshal(definitions)
	if err == nil && len(encoded) > largeSchemaBytes {
		return extendedMaxIterations
	}
	return defaultMaxIterations
}

func addUsage(total *provider.Usage, u provider.Usage) {
	total.InputTokens += u.InputTokens
	total.OutputTokens += u.OutputTokens
	total.TotalTokens += u.TotalTokens
	if u.Estimated {
		total.Estimated = true
	}
}
