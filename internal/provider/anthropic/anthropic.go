// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

// Package anthropic adapts the Anthropic Messages API to the
// provider.Endpoint contract.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/conductor-ai/conductor/internal/provider"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// defaultMaxTokens applies when the request does not set a limit; the
// Messages API requires one.
const defaultMaxTokens = 4096

// Config holds Anthropic endpoint configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Endpoint implements provider.Endpoint using the Anthropic Messages API.
type Endpoint struct {
	client anthropicsdk.Client
	health *provider.HealthTracker
}

// New creates an Anthropic endpoint. Returns an error if the API key is missing.
func New(cfg Config) (*Endpoint, error) {
	if cfg.APIKey == "" {
		return nil, conderr.New(conderr.CodeProviderRequestInvalid,
			"anthropic: missing api_key in config", conderr.FieldProvider("anthropic"))
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
		client: anthropicsdk.NewClient(opts...),
		health: health,
	}, nil
}

func (e *Endpoint) Name() string { return "anthropic" }

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

// stream runs the SDK streaming loop, translating Messages API events.
// Tool-use blocks arrive keyed by content-block index.
func (e *Endpoint) stream(ctx context.Context, params anthropicsdk.MessageNewParams, ch chan<- provider.Event) error {
	stream := e.client.Messages.NewStreaming(ctx, params)

	type toolAccum struct {
		id   string
		name string
	}
	blocks := make(map[int64]*toolAccum)
	var usage provider.Usage

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			usage.InputTokens = int(event.Message.Usage.InputTokens)

		case "content_block_start":
			cb := event.ContentBlock
			if cb.Type == "tool_use" {
				blocks[event.Index] = &toolAccum{id: cb.ID, name: cb.Name}
				ch <- provider.Event{
					Type:     provider.EventTypeToolCallStart,
					ToolCall: &provider.ToolCallDelta{ID: cb.ID, Name: cb.Name},
				}
			}

		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				ch <- provider.Event{
					Type: provider.EventTypeTextDelta,
					Text: event.Delta.Text,
				}
			case "input_json_delta":
				if acc, ok := blocks[event.Index]; ok {
					ch <- provider.Event{
						Type:     provider.EventTypeToolCallDelta,
						ToolCall: &provider.ToolCallDelta{ID: acc.id, ArgsDelta: event.Delta.PartialJSON},
					}
				}
			}

		case "content_block_stop":
			if acc, ok := blocks[event.Index]; ok {
				ch <- provider.Event{
					Type:     provider.EventTypeToolCallDone,
					ToolCall: &provider.ToolCallDelta{ID: acc.id, Name: acc.name},
				}
				delete(blocks, event.Index)
			}

		case "message_delta":
			usage.OutputTokens = int(event.Usage.OutputTokens)

		case "message_stop":
			e.health.RecordSuccess()
			usage.TotalTokens = usage.InputTokens + usage.OutputTokens
			ch <- provider.Event{Type: provider.EventTypeDone, Usage: &usage}
			return nil
		}
	}

	if err := stream.Err(); err != nil {
		e.health.RecordFailure()
		return wrapErr(err)
	}

	// Stream ended without a message_stop; report what was gathered.
	e.health.RecordSuccess()
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	ch <- provider.Event{Type: provider.EventTypeDone, Usage: &usage}
	return nil
}

// wrapErr classifies an SDK error for gateway retry handling.
func wrapErr(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return conderr.Wrapf(err, conderr.CodeProviderRateLimited, "anthropic: rate limited")
		case apiErr.StatusCode >= 500:
			return conderr.Wrapf(err, conderr.CodeProviderUpstreamFailure, "anthropic: upstream error")
		default:
			return conderr.Wrapf(err, conderr.CodeProviderRequestInvalid, "anthropic: request rejected")
		}
	}
	return conderr.Wrapf(err, conderr.CodeProviderUpstreamFailure, "anthropic: transport failure")
}

// buildParams converts a provider.Request into SDK MessageNewParams.
// System-role messages merge into the top-level system param.
func buildParams(req provider.Request) (anthropicsdk.MessageNewParams, error) {
	msgs, system, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}

	if req.SystemPrompt != "" {
		system = append([]string{req.SystemPrompt}, system...)
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}

	if len(system) > 0 {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: strings.Join(system, "\n\n")},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(float64(req.Temperature))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	return params, nil
}

// convertMessages transforms provider messages into SDK MessageParam
// slices, returning system-role contents separately. Tool results become
// user-role tool_result blocks; assistant tool calls are replayed as
// tool_use blocks.
func convertMessages(msgs []provider.Message) ([]anthropicsdk.MessageParam, []string, error) {
	var result []anthropicsdk.MessageParam
	var system []string

	for _, msg := range msgs {
		switch msg.Role {
		case provider.RoleSystem:
			if msg.Content != "" {
				system = append(system, msg.Content)
			}

		case provider.RoleUser:
			result = append(result, anthropicsdk.NewUserMessage(
				anthropicsdk.NewTextBlock(flatten(msg)),
			))

		case provider.RoleAssistant:
			var content []anthropicsdk.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropicsdk.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				input := make(map[string]any)
				if err := json.Unmarshal([]byte(call.Arguments), &input); err != nil {
					input = map[string]any{}
				}
				content = append(content, anthropicsdk.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(content) == 0 {
				content = append(content, anthropicsdk.NewTextBlock(""))
			}
			result = append(result, anthropicsdk.NewAssistantMessage(content...))

		case provider.RoleTool:
			result = append(result, anthropicsdk.NewUserMessage(
				anthropicsdk.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))

		default:
			return nil, nil, conderr.Errorf(conderr.CodeProviderRequestInvalid,
				"anthropic: unsupported message role %q", msg.Role)
		}
	}

	return result, system, nil
}

// flatten folds a multi-part message into plain text; image parts are
// referenced by URL since attachments arrive as links, not payloads.
func flatten(msg provider.Message) string {
	if len(msg.Parts) == 0 {
		return msg.Content
	}
	var b strings.Builder
	for _, part := range msg.Parts {
		switch part.Type {
		case provider.PartTypeText:
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(part.Text)
		case provider.PartTypeImage:
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString("[image] " + part.ImageURL)
		}
	}
	return b.String()
}

// convertTools transforms tool definitions into SDK tool params.
func convertTools(tools []provider.ToolDefinition) []anthropicsdk.ToolUnionParam {
	result := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.Opt(t.Description),
				InputSchema: extractSchema(t.InputSchema),
			},
		})
	}
	return result
}

// extractSchema maps a full JSON Schema object into the SDK's
// ToolInputSchemaParam, which wants properties and required separately.
func extractSchema(raw map[string]any) anthropicsdk.ToolInputSchemaParam {
	schema := anthropicsdk.ToolInputSchemaParam{}
	if props, ok := raw["properties"]; ok {
		schema.Properties = props
	}
	if req, ok := raw["required"]; ok {
		if arr, ok := req.([]any); ok {
			strs := make([]string, 0, len(arr))
			for _, v := range arr {
				if s, ok := v.(string); ok {
					strs = append(strs, s)
				}
			}
			schema.Required = strs
		}
	}
	return schema
}
