// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package anthropic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-ai/conductor/internal/provider"
	"github.com/conductor-ai/conductor/internal/provider/anthropic"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// Compile-time interface satisfaction check.
var _ provider.Endpoint = (*anthropic.Endpoint)(nil)

func mustNewEndpoint(t *testing.T) *anthropic.Endpoint {
	t.Helper()
	e, err := anthropic.New(anthropic.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)
	return e
}

func TestAnthropicEndpoint_Name(t *testing.T) {
	assert.Equal(t, "anthropic", mustNewEndpoint(t).Name())
}

func TestAnthropicEndpoint_MissingAPIKey(t *testing.T) {
	_, err := anthropic.New(anthropic.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, conderr.IsInvalidInput(err))
}

func TestAnthropicEndpoint_Available(t *testing.T) {
	assert.True(t, mustNewEndpoint(t).Available(context.Background()))
}

func TestConvertMessagesSeparatesSystem(t *testing.T) {
	msgs, system, err := anthropic.ConvertMessages([]provider.Message{
		{Role: provider.RoleSystem, Content: "be terse"},
		{Role: provider.RoleUser, Content: "question"},
		{Role: provider.RoleAssistant, Content: "answer"},
		{Role: provider.RoleSystem, Content: "make an artifact"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"be terse", "make an artifact"}, system)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
}

func TestConvertMessagesReplaysToolCalls(t *testing.T) {
	msgs, _, err := anthropic.ConvertMessages([]provider.Message{
		{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{
			{ID: "c1", Name: "calc.eval", Arguments: `{"expr":"1+1"}`},
		}},
		{Role: provider.RoleTool, Content: "2", ToolCallID: "c1", ToolName: "calc.eval"},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	// Assistant turn carries a tool_use block, tool result rides in a
	// user-role tool_result block.
	require.Len(t, msgs[0].Content, 1)
	require.NotNil(t, msgs[0].Content[0].OfToolUse)
	assert.Equal(t, "c1", msgs[0].Content[0].OfToolUse.ID)
	assert.Equal(t, "calc.eval", msgs[0].Content[0].OfToolUse.Name)

	require.Len(t, msgs[1].Content, 1)
	require.NotNil(t, msgs[1].Content[0].OfToolResult)
	assert.Equal(t, "c1", msgs[1].Content[0].OfToolResult.ToolUseID)
}

func TestConvertMessagesUnknownRole(t *testing.T) {
	_, _, err := anthropic.ConvertMessages([]provider.Message{{Role: "narrator"}})
	require.Error(t, err)
	assert.True(t, conderr.IsInvalidInput(err))
}

func TestBuildParamsDefaults(t *testing.T) {
	params, err := anthropic.BuildParams(provider.Request{
		Model:        "claude-sonnet-4-5",
		SystemPrompt: "you are an analyst",
		Messages:     []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-5", string(params.Model))
	assert.Equal(t, int64(4096), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "you are an analyst", params.System[0].Text)
}

func TestExtractSchema(t *testing.T) {
	schema := anthropic.ExtractSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expr": map[string]any{"type": "string"},
		},
		"required": []any{"expr", 42},
	})

	assert.NotNil(t, schema.Properties)
	assert.Equal(t, []string{"expr"}, schema.Required)
}

func TestWrapErrClassification(t *testing.T) {
	err := anthropic.WrapErr(assert.AnError)
	assert.True(t, conderr.IsUpstreamFailure(err))
}
