// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package openai_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-ai/conductor/internal/provider"
	"github.com/conductor-ai/conductor/internal/provider/openai"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// Compile-time interface satisfaction check.
var _ provider.Endpoint = (*openai.Endpoint)(nil)

func mustNewEndpoint(t *testing.T) *openai.Endpoint {
	t.Helper()
	e, err := openai.New(openai.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)
	return e
}

func TestOpenAIEndpoint_Name(t *testing.T) {
	assert.Equal(t, "openai", mustNewEndpoint(t).Name())
}

func TestOpenAIEndpoint_MissingAPIKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, conderr.IsInvalidInput(err))
}

func TestOpenAIEndpoint_Available(t *testing.T) {
	assert.True(t, mustNewEndpoint(t).Available(context.Background()))
}

func TestOpenAIEndpoint_Close(t *testing.T) {
	assert.NoError(t, mustNewEndpoint(t).Close())
}

func TestConvertMessages(t *testing.T) {
	msgs := []provider.Message{
		{Role: provider.RoleSystem, Content: "be terse"},
		{Role: provider.RoleUser, Content: "question"},
		{Role: provider.RoleAssistant, Content: "calling a tool", ToolCalls: []provider.ToolCall{
			{ID: "c1", Name: "calc.eval", Arguments: `{"expr":"1+1"}`},
		}},
		{Role: provider.RoleTool, Content: "2", ToolCallID: "c1", ToolName: "calc.eval"},
		{Role: provider.RoleAssistant, Content: "the answer is 2"},
	}

	result, err := openai.ConvertMessages(msgs, "system prompt")
	require.NoError(t, err)
	// System prompt prepended, then the five conversation messages.
	require.Len(t, result, 6)

	assistant := result[3].OfAssistant
	require.NotNil(t, assistant, "assistant tool-call turn must carry tool_calls")
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "c1", assistant.ToolCalls[0].ID)
	assert.Equal(t, "calc.eval", assistant.ToolCalls[0].Function.Name)

	toolMsg := result[4].OfTool
	require.NotNil(t, toolMsg)
	assert.Equal(t, "c1", toolMsg.ToolCallID)
}

func TestConvertMessagesUnknownRole(t *testing.T) {
	_, err := openai.ConvertMessages([]provider.Message{{Role: "narrator", Content: "x"}}, "")
	require.Error(t, err)
	assert.True(t, conderr.IsInvalidInput(err))
}

func TestConvertMessagesNormalizesBadToolArgs(t *testing.T) {
	result, err := openai.ConvertMessages([]provider.Message{
		{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{
			{ID: "c1", Name: "calc.eval", Arguments: `{"broken":`},
		}},
	}, "")
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "{}", result[0].OfAssistant.ToolCalls[0].Function.Arguments)
}

func TestBuildParams(t *testing.T) {
	params, err := openai.BuildParams(provider.Request{
		Model:       "gpt-4.1-mini",
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
		MaxTokens:   256,
		Temperature: 0.2,
		Tools: []provider.ToolDefinition{{
			Name:        "calc.eval",
			Description: "evaluate arithmetic",
			InputSchema: map[string]any{"type": "object"},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1-mini", string(params.Model))
	assert.Equal(t, int64(256), params.MaxCompletionTokens.Value)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "calc.eval", params.Tools[0].Function.Name)
}

func TestWrapErrClassification(t *testing.T) {
	// Non-API errors (network failures etc.) count as upstream failures
	// so the gateway retries them.
	err := openai.WrapErr(assert.AnError)
	assert.True(t, conderr.IsUpstreamFailure(err))
}
