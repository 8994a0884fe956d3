// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-ai/conductor/internal/provider"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

func TestEnsureKeepsSubstantiveAssistant(t *testing.T) {
	caller := &scriptedCaller{}
	rs := newRunState("r1", nil, 10)
	rs.append(provider.Message{Role: provider.RoleAssistant, Content: "Revenue grew 4%."})

	content := Synthesizer{Caller: caller, Model: "m"}.Ensure(context.Background(), rs)

	assert.Equal(t, "Revenue grew 4%.", content)
	assert.Empty(t, caller.requests, "no model call when the run already answered")
	assert.Len(t, rs.runMessages(), 1)
}

func TestEnsureGenericWithoutToolResults(t *testing.T) {
	caller := &scriptedCaller{}
	rs := newRunState("r1", nil, 10)
	rs.append(provider.Message{Role: provider.RoleAssistant, Content: "Done."})

	content := Synthesizer{Caller: caller, Model: "m"}.Ensure(context.Background(), rs)

	assert.Equal(t, genericFallback, content)
	assert.Empty(t, caller.requests)

	run := rs.runMessages()
	require.Len(t, run, 2)
	assert.Equal(t, provider.RoleAssistant, run[1].Role)
	assert.Equal(t, genericFallback, run[1].Content)
}

func TestEnsureSynthesizesFromToolResults(t *testing.T) {
	caller := &scriptedCaller{}
	caller.scriptComplete(&provider.Response{Content: "Per calc.eval, the total is 42."}, nil)

	rs := newRunState("r1", nil, 10)
	rs.append(provider.Message{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{ID: "c1", Name: "calc.eval"}}})
	rs.append(provider.Message{Role: provider.RoleTool, Content: "42", ToolCallID: "c1", ToolName: "calc.eval"})

	content := Synthesizer{Caller: caller, Model: "m"}.Ensure(context.Background(), rs)

	assert.Equal(t, "Per calc.eval, the total is 42.", content)

	require.Len(t, caller.requests, 1)
	req := caller.requests[0]
	assert.Empty(t, req.Tools, "synthesis call offers no tools")
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, provider.RoleSystem, last.Role)
	assert.Equal(t, synthesisInstruction, last.Content)
}

func TestEnsureFallsBackToRawToolResult(t *testing.T) {
	caller := &scriptedCaller{}
	caller.scriptComplete(nil, conderr.New(conderr.CodeProviderUpstreamFailure, "model down"))

	rs := newRunState("r1", nil, 10)
	rs.append(provider.Message{Role: provider.RoleTool, Content: `{"total": 42}`, ToolCallID: "c1", ToolName: "calc.eval"})

	content := Synthesizer{Caller: caller, Model: "m"}.Ensure(context.Background(), rs)
	assert.Equal(t, `{"total": 42}`, content)
}

func TestEnsureGenericWhenEverythingIsEmpty(t *testing.T) {
	caller := &scriptedCaller{}
	caller.scriptComplete(&provider.Response{Content: "  "}, nil)

	rs := newRunState("r1", nil, 10)
	rs.append(provider.Message{Role: provider.RoleTool, Content: `{"success": true}`, ToolCallID: "c1", ToolName: "session.run"})

	content := Synthesizer{Caller: caller, Model: "m"}.Ensure(context.Background(), rs)
	assert.Equal(t, genericFallback, content)
}
