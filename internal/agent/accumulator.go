// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package agent

import (
	"encoding/json"
	"strings"

	"github.com/conductor-ai/conductor/internal/provider"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// StreamResult is the reconstructed outcome of one streamed model turn.
type StreamResult struct {
	Content   string
	ToolCalls []provider.ToolCall
	Usage     *provider.Usage
}

// streamAccumulator consumes incremental events from the gateway and
// reconstructs the assistant text plus any in-progress tool calls.
type streamAccumulator struct {
	sink      Sink
	runID     string
	iteration int
}

type toolCallAccum struct {
	id       string
	name     string
	argsText strings.Builder
	done     bool
}

// consume drains the event channel in arrival order. Tool calls are
// read from the accumulators at stream end even when no completion
// signal arrived for them; some endpoints omit it.
func (a *streamAccumulator) consume(events <-chan provider.Event) (*StreamResult, error) {
	var text strings.Builder
	accums := make(map[string]*toolCallAccum)
	var order []string
	var usage *provider.Usage
	var streamErr error

	for ev := range events {
		switch ev.Type {
		case provider.EventTypeTextDelta:
			text.WriteString(ev.Text)
			emit(a.sink, ProgressEvent{
				Kind:      EventTextDelta,
				RunID:     a.runID,
				Iteration: a.iteration,
				Text:      text.String(),
			})

		case provider.EventTypeToolCallStart:
			if ev.ToolCall == nil {
				continue
			}
			if _, exists := accums[ev.ToolCall.ID]; !exists {
				accums[ev.ToolCall.ID] = &toolCallAccum{
					id:   ev.ToolCall.ID,
					name: ev.ToolCall.Name,
				}
				order = append(order, ev.ToolCall.ID)
			}
			emit(a.sink, ProgressEvent{
				Kind:      EventReasoningStep,
				RunID:     a.runID,
				Iteration: a.iteration,
				Tool:      ev.ToolCall.Name,
			})

		case provider.EventTypeToolCallDelta:
			if ev.ToolCall == nil {
				continue
			}
			acc, exists := accums[ev.ToolCall.ID]
			if !exists {
				// Delta without a start event: register defensively.
				acc = &toolCallAccum{id: ev.ToolCall.ID, name: ev.ToolCall.Name}
				accums[ev.ToolCall.ID] = acc
				order = append(order, ev.ToolCall.ID)
			}
			acc.argsText.WriteString(ev.ToolCall.ArgsDelta)

		case provider.EventTypeToolCallDone:
			if ev.ToolCall == nil {
				continue
			}
			if acc, exists := accums[ev.ToolCall.ID]; exists {
				acc.done = true
				if acc.name == "" {
					acc.name = ev.ToolCall.Name
				}
			}

		case provider.EventTypeUsage:
			if ev.Usage != nil {
				usage = ev.Usage
			}

		case provider.EventTypeError:
			streamErr = conderr.New(conderr.CodeProviderStreamFailure, ev.Error)

		case provider.EventTypeDone:
			if ev.Usage != nil {
				usage = ev.Usage
			}
		}
	}

	if streamErr != nil {
		return nil, streamErr
	}

	calls := make([]provider.ToolCall, 0, len(order))
	for _, id := range order {
		acc := accums[id]
		calls = append(calls, provider.ToolCall{
			ID:        acc.id,
			Name:      acc.name,
			Arguments: normalizeArgs(acc.argsText.String()),
		})
	}

	return &StreamResult{
		Content:   text.String(),
		ToolCalls: calls,
		Usage:     usage,
	}, nil
}

// normalizeArgs returns the argument text as valid JSON, substituting an
// empty object when the accumulated fragments never became parseable.
func normalizeArgs(argsText string) string {
	trimmed := strings.TrimSpace(argsText)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return "{}"
	}
	return trimmed
}

// fromResponse converts a complete (non-streaming) response into the
// same shape the streaming path produces, so both paths share loop
// semantics downstream.
func fromResponse(resp *provider.Response) *StreamResult {
	calls := make([]provider.ToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		tc.Arguments = normalizeArgs(tc.Arguments)
		calls = append(calls, tc)
	}
	return &StreamResult{
		Content:   resp.Content,
		ToolCalls: calls,
		Usage:     resp.Usage,
	}
}
