// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

// Package openai adapts the OpenAI Chat Completions API to the
// provider.Endpoint contract.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/conductor-ai/conductor/internal/provider"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// Config holds OpenAI endpoint configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Endpoint implements provider.Endpoint using the OpenAI Chat Completions API.
type Endpoint struct {
	client openaisdk.Client
	health *provider.HealthTracker
}

// New creates an OpenAI endpoint. Returns an error if the API key is missing.
func New(cfg Config) (*Endpoint, error) {
	if cfg.APIKey == "" {
		return nil, conderr.New(conderr.CodeProviderRequestInvalid,
			"openai: missing api_key in config", conderr.FieldProvider("openai"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	health, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}

	return &Endpoint{
		client: openaisdk.NewClient(opts...),
		health: health,
	}, nil
}

func (e *Endpoint) Name() string { return "openai" }

// Available reports whether the endpoint is healthy or past its failure
// cooldown.
func (e *Endpoint) Available(_ context.Context) bool {
	return e.health.IsHealthy()
}

func (e *Endpoint) Close() error { return nil }

// Complete issues a request and assembles the streamed reply into one
// response.
func (e *Endpoint) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.Event, 100)
	var streamErr error
	go func() {
		defer close(ch)
		streamErr = e.stream(ctx, params, ch)
	}()

	resp, collectErr := provider.Collect(ch)
	if streamErr != nil {
		return nil, streamErr
	}
	return resp, collectErr
}

// Stream issues a request and returns the event sequence. The channel is
// closed after a done or error event.
func (e *Endpoint) Stream(ctx context.Context, req provider.Request) (<-chan provider.Event, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.Event, 100)
	go func() {
		defer close(ch)
		if err := e.stream(ctx, params, ch); err != nil {
			ch <- provider.Event{Type: provider.EventTypeError, Error: err.Error()}
		}
	}()
	return ch, nil
}

// stream runs the SDK streaming loop, translating chunks into events.
// Tool-call fragments arrive keyed by choice index; start events are
// emitted once the call's ID and name are known.
func (e *Endpoint) stream(ctx context.Context, params openaisdk.ChatCompletionNewParams, ch chan<- provider.Event) error {
	stream := e.client.Chat.Completions.NewStreaming(ctx, params)

	type toolAccum struct {
		id      string
		name    string
		pending string
		started bool
	}
	accums := make(map[int64]*toolAccum)
	var order []int64
	var usage *provider.Usage

	// flush emits done events in first-seen index order and clears the
	// accumulators.
	flush := func() {
		for _, idx := range order {
			acc := accums[idx]
			ch <- provider.Event{
				Type:     provider.EventTypeToolCallDone,
				ToolCall: &provider.ToolCallDelta{ID: acc.id, Name: acc.name},
			}
			delete(accums, idx)
		}
		order = order[:0]
	}

	for stream.Next() {
		chunk := stream.Current()

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				ch <- provider.Event{
					Type: provider.EventTypeTextDelta,
					Text: choice.Delta.Content,
				}
			}

			for _, tc := range choice.Delta.ToolCalls {
				acc, ok := accums[tc.Index]
				if !ok {
					acc = &toolAccum{}
					accums[tc.Index] = acc
					order = append(order, tc.Index)
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.pending += tc.Function.Arguments

				if !acc.started && acc.id != "" && acc.name != "" {
					acc.started = true
					ch <- provider.Event{
						Type:     provider.EventTypeToolCallStart,
						ToolCall: &provider.ToolCallDelta{ID: acc.id, Name: acc.name},
					}
				}
				if acc.started && acc.pending != "" {
					ch <- provider.Event{
						Type:     provider.EventTypeToolCallDelta,
						ToolCall: &provider.ToolCallDelta{ID: acc.id, ArgsDelta: acc.pending},
					}
					acc.pending = ""
				}
			}

			if choice.FinishReason == "tool_calls" {
				flush()
			}
		}

		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage = &provider.Usage{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:  int(chunk.Usage.TotalTokens),
			}
		}
	}

	if err := stream.Err(); err != nil {
		e.health.RecordFailure()
		return wrapErr(err)
	}

	flush()
	e.health.RecordSuccess()
	ch <- provider.Event{Type: provider.EventTypeDone, Usage: usage}
	return nil
}

// wrapErr classifies an SDK error for gateway retry handling.
func wrapErr(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return conderr.Wrapf(err, conderr.CodeProviderRateLimited, "openai: rate limited")
		case apiErr.StatusCode >= 500:
			return conderr.Wrapf(err, conderr.CodeProviderUpstreamFailure, "openai: upstream error")
		default:
			return conderr.Wrapf(err, conderr.CodeProviderRequestInvalid, "openai: request rejected")
		}
	}
	return conderr.Wrapf(err, conderr.CodeProviderUpstreamFailure, "openai: transport failure")
}

// buildParams converts a provider.Request into SDK ChatCompletionNewParams.
func buildParams(req provider.Request) (openaisdk.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages, req.SystemPrompt)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
		StreamOptions: openaisdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: param.NewOpt(true),
		},
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(float64(req.Temperature))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	return params, nil
}

// convertMessages transforms provider messages into SDK message params.
// The request-level system prompt, when present, is prepended as a
// system message.
func convertMessages(msgs []provider.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var result []openaisdk.ChatCompletionMessageParamUnion

	if systemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(systemPrompt))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case provider.RoleSystem:
			result = append(result, openaisdk.SystemMessage(msg.Content))

		case provider.RoleUser:
			if len(msg.Parts) > 0 {
				result = append(result, openaisdk.UserMessage(convertParts(msg.Parts)))
				continue
			}
			result = append(result, openaisdk.UserMessage(msg.Content))

		case provider.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				result = append(result, openaisdk.AssistantMessage(msg.Content))
				continue
			}
			assistant := openaisdk.ChatCompletionAssistantMessageParam{
				ToolCalls: convertToolCalls(msg.ToolCalls),
			}
			if msg.Content != "" {
				assistant.Content = openaisdk.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openaisdk.String(msg.Content),
				}
			}
			result = append(result, openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		case provider.RoleTool:
			result = append(result, openaisdk.ToolMessage(msg.Content, msg.ToolCallID))

		default:
			return nil, conderr.Errorf(conderr.CodeProviderRequestInvalid,
				"openai: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

func convertParts(parts []provider.ContentPart) []openaisdk.ChatCompletionContentPartUnionParam {
	result := make([]openaisdk.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case provider.PartTypeText:
			result = append(result, openaisdk.TextContentPart(part.Text))
		case provider.PartTypeImage:
			result = append(result, openaisdk.ImageContentPart(
				openaisdk.ChatCompletionContentPartImageImageURLParam{URL: part.ImageURL},
			))
		}
	}
	return result
}

// convertToolCalls replays assistant tool calls so the API accepts the
// tool-result messages that follow them.
func convertToolCalls(calls []provider.ToolCall) []openaisdk.ChatCompletionMessageToolCallParam {
	result := make([]openaisdk.ChatCompletionMessageToolCallParam, 0, len(calls))
	for _, call := range calls {
		args := strings.TrimSpace(call.Arguments)
		if args == "" || !json.Valid([]byte(args)) {
			args = "{}"
		}
		result = append(result, openaisdk.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: args,
			},
		})
	}
	return result
}

// convertTools transforms tool definitions into SDK tool params.
func convertTools(tools []provider.ToolDefinition) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(t.InputSchema),
			},
		})
	}
	return result
}
