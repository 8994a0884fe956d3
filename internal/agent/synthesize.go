// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package agent

import (
	"context"

	"github.com/conductor-ai/conductor/internal/provider"
)

// ModelCaller is the slice of the gateway the loop needs. *provider.Gateway
// satisfies it; tests substitute scripted fakes.
type ModelCaller interface {
	Complete(ctx context.Context, req provider.Request) (*provider.Response, error)
	Stream(ctx context.Context, req provider.Request) (<-chan provider.Event, error)
}

const synthesisInstruction = "Compose the final answer for the user from the tool results above. " +
	"Use only information those results contain, say which tool each claim comes from, " +
	"and state plainly anything the user asked for that the results do not cover."

const genericFallback = "I was unable to produce a useful result for this request. " +
	"Please try rephrasing or breaking it into smaller steps."

// Synthesizer guarantees every run ends with a substantive assistant
// message. When the loop finishes without one it degrades gracefully:
// a dedicated synthesis call over the run's tool results, then the raw
// content of the last tool result, then a generic notice.
type Synthesizer struct {
	Caller ModelCaller
	Model  string
}

// Ensure returns the run's final assistant content, appending a new
// assistant message to the run log when one has to be synthesized.
// Synthesis failures never surface as errors; the chain always yields
// some content.
func (s Synthesizer) Ensure(ctx context.Context, rs *runState) string {
	if last := rs.lastAssistantContent(); !looksEmpty(last) {
		return last
	}

	if !s.hasToolResults(rs) {
		rs.append(provider.Message{Role: provider.RoleAssistant, Content: genericFallback})
		return genericFallback
	}

	content := s.synthesize(ctx, rs)
	if looksEmpty(content) {
		content = s.rawToolFallback(rs)
	}
	rs.append(provider.Message{Role: provider.RoleAssistant, Content: content})
	return content
}

func (s Synthesizer) hasToolResults(rs *runState) bool {
	for _, msg := range rs.runMessages() {
		if msg.Role == provider.RoleTool {
			return true
		}
	}
	return false
}

// synthesize makes a single tool-free completion over the run segment.
// Returns "" on any failure so the caller falls through the chain.
func (s Synthesizer) synthesize(ctx context.Context, rs *runState) string {
	if s.Caller == nil {
		return ""
	}

	messages := make([]provider.Message, 0, len(rs.messages)+1)
	messages = append(messages, rs.messages...)
	messages = append(messages, provider.Message{
		Role:    provider.RoleSystem,
		Content: synthesisInstruction,
	})

	resp, err := s.Caller.Complete(ctx, provider.Request{
		Model:    s.Model,
		Messages: messages,
	})
	if err != nil || resp == nil {
		return ""
	}
	return resp.Content
}

// rawToolFallback surfaces the last tool result verbatim rather than
// returning nothing at all.
func (s Synthesizer) rawToolFallback(rs *runState) string {
	if msg := rs.lastToolResult(); msg != nil && !looksEmpty(msg.Content) {
		return msg.Content
	}
	return genericFallback
}
