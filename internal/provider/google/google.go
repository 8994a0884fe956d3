// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

// Package google adapts the Google Gemini API to the provider.Endpoint
// contract.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/conductor-ai/conductor/internal/provider"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// Config holds Google endpoint configuration.
type Config struct {
	APIKey string
}

// Endpoint implements provider.Endpoint using the Google Gemini API.
type Endpoint struct {
	client *genai.Client
	health *provider.HealthTracker
}

// New creates a Google endpoint. Returns an error if the API key is missing.
func New(cfg Config) (*Endpoint, error) {
	if cfg.APIKey == "" {
		return nil, conderr.New(conderr.CodeProviderRequestInvalid,
			"google: missing api_key in config", conderr.FieldProvider("google"))
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, conderr.Wrapf(err, conderr.CodeProviderUpstreamFailure, "google: creating client")
	}

	health, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}

	return &Endpoint{client: client, health: health}, nil
}

func (e *Endpoint) Name() string { return "google" }

// Available reports whether the endpoint is healthy or past its failure
// cooldown.
func (e *Endpoint) Available(_ context.Context) bool {
	return e.health.IsHealthy()
}

func (e *Endpoint) Close() error { return nil }

// Complete issues a request and assembles the streamed reply into one
// response.
func (e *Endpoint) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	contents, config, err := buildRequest(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.Event, 100)
	var streamErr error
	go func() {
		defer close(ch)
		streamErr = e.stream(ctx, req.Model, contents, config, ch)
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
	contents, config, err := buildRequest(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.Event, 100)
	go func() {
		defer close(ch)
		if err := e.stream(ctx, req.Model, contents, config, ch); err != nil {
			ch <- provider.Event{Type: provider.EventTypeError, Error: err.Error()}
		}
	}()
	return ch, nil
}

// stream runs the SDK streaming loop. Gemini delivers tool calls whole,
// so each one becomes a start/delta/done triple.
func (e *Endpoint) stream(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	ch chan<- provider.Event,
) error {
	var usage *provider.Usage

	for result, err := range e.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			e.health.RecordFailure()
			return wrapErr(err)
		}

		for _, candidate := range result.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					ch <- provider.Event{
						Type: provider.EventTypeTextDelta,
						Text: part.Text,
					}
				}
				if part.FunctionCall != nil {
					if err := emitFunctionCall(ch, part.FunctionCall); err != nil {
						e.health.RecordFailure()
						return err
					}
				}
			}
		}

		if result.UsageMetadata != nil {
			usage = &provider.Usage{
				InputTokens:  int(result.UsageMetadata.PromptTokenCount),
				OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
				TotalTokens:  int(result.UsageMetadata.TotalTokenCount),
			}
		}
	}

	e.health.RecordSuccess()
	ch <- provider.Event{Type: provider.EventTypeDone, Usage: usage}
	return nil
}

func emitFunctionCall(ch chan<- provider.Event, call *genai.FunctionCall) error {
	args, err := json.Marshal(call.Args)
	if err != nil {
		return conderr.Wrapf(err, conderr.CodeProviderUpstreamFailure,
			"google: marshaling tool call arguments for %q", call.Name)
	}

	ch <- provider.Event{
		Type:     provider.EventTypeToolCallStart,
		ToolCall: &provider.ToolCallDelta{ID: call.ID, Name: call.Name},
	}
	ch <- provider.Event{
		Type:     provider.EventTypeToolCallDelta,
		ToolCall: &provider.ToolCallDelta{ID: call.ID, ArgsDelta: string(args)},
	}
	ch <- provider.Event{
		Type:     provider.EventTypeToolCallDone,
		ToolCall: &provider.ToolCallDelta{ID: call.ID, Name: call.Name},
	}
	return nil
}

// wrapErr classifies an SDK error for gateway retry handling.
func wrapErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return conderr.Wrapf(err, conderr.CodeProviderRateLimited, "google: rate limited")
		case apiErr.Code >= 500:
			return conderr.Wrapf(err, conderr.CodeProviderUpstreamFailure, "google: upstream error")
		default:
			return conderr.Wrapf(err, conderr.CodeProviderRequestInvalid, "google: request rejected")
		}
	}
	return conderr.Wrapf(err, conderr.CodeProviderUpstreamFailure, "google: transport failure")
}

// buildRequest converts a provider.Request into genai contents and config.
func buildRequest(req provider.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	contents, system, err := convertMessages(req.Messages)
	if err != nil {
		return nil, nil, err
	}

	if req.SystemPrompt != "" {
		system = append([]string{req.SystemPrompt}, system...)
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: strings.Join(system, "\n\n")},
			},
		}
	}
	if len(req.Tools) > 0 {
		cfg.Tools = convertTools(req.Tools)
	}

	return contents, cfg, nil
}

// convertMessages transforms provider messages into genai Content slices,
// returning system-role contents separately for SystemInstruction.
// Tool results ride as user-role FunctionResponse parts; assistant tool
// calls are replayed as FunctionCall parts.
func convertMessages(msgs []provider.Message) ([]*genai.Content, []string, error) {
	var result []*genai.Content
	var system []string

	for _, msg := range msgs {
		switch msg.Role {
		case provider.RoleSystem:
			if msg.Content != "" {
				system = append(system, msg.Content)
			}

		case provider.RoleUser:
			result = append(result, &genai.Content{
				Role:  "user",
				Parts: convertParts(msg),
			})

		case provider.RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				args := make(map[string]any)
				if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
					args = map[string]any{}
				}
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   call.ID,
						Name: call.Name,
						Args: args,
					},
				})
			}
			if len(parts) == 0 {
				parts = append(parts, &genai.Part{Text: ""})
			}
			result = append(result, &genai.Content{Role: "model", Parts: parts})

		case provider.RoleTool:
			result = append(result, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{
					{
						FunctionResponse: &genai.FunctionResponse{
							ID:       msg.ToolCallID,
							Name:     msg.ToolName,
							Response: map[string]any{"result": msg.Content},
						},
					},
				},
			})

		default:
			return nil, nil, conderr.Errorf(conderr.CodeProviderRequestInvalid,
				"google: unsupported message role %q", msg.Role)
		}
	}

	return result, system, nil
}

func convertParts(msg provider.Message) []*genai.Part {
	if len(msg.Parts) == 0 {
		return []*genai.Part{{Text: msg.Content}}
	}
	parts := make([]*genai.Part, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case provider.PartTypeText:
			parts = append(parts, &genai.Part{Text: part.Text})
		case provider.PartTypeImage:
			// Attachments arrive as links; Gemini fetches them by URI.
			parts = append(parts, &genai.Part{
				FileData: &genai.FileData{FileURI: part.ImageURL},
			})
		}
	}
	return parts
}

// convertTools transforms tool definitions into genai Tool slices.
func convertTools(tools []provider.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.InputSchema,
		})
	}
	return []*genai.Tool{
		{FunctionDeclarations: decls},
	}
}
