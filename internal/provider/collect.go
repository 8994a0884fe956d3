// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package provider

import (
	"strings"

	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// Collect drains a streamed event sequence and assembles it into a
// complete Response. Endpoints use it to serve Complete through their
// streaming code path so both paths share one SDK surface.
func Collect(events <-chan Event) (*Response, error) {
	var text strings.Builder
	var usage *Usage
	var errMsg string

	type accum struct {
		id   string
		name string
		args strings.Builder
	}
	accums := make(map[string]*accum)
	var order []string

	for ev := range events {
		switch ev.Type {
		case EventTypeTextDelta:
			text.WriteString(ev.Text)

		case EventTypeToolCallStart, EventTypeToolCallDelta:
			if ev.ToolCall == nil {
				continue
			}
			acc, ok := accums[ev.ToolCall.ID]
			if !ok {
				acc = &accum{id: ev.ToolCall.ID}
				accums[ev.ToolCall.ID] = acc
				order = append(order, ev.ToolCall.ID)
			}
			if ev.ToolCall.Name != "" {
				acc.name = ev.ToolCall.Name
			}
			acc.args.WriteString(ev.ToolCall.ArgsDelta)

		case EventTypeUsage:
			if ev.Usage != nil {
				usage = ev.Usage
			}

		case EventTypeError:
			errMsg = ev.Error

		case EventTypeDone:
			if ev.Usage != nil {
				usage = ev.Usage
			}
		}
	}

	if errMsg != "" {
		return nil, conderr.New(conderr.CodeProviderStreamFailure, errMsg)
	}

	calls := make([]ToolCall, 0, len(order))
	for _, id := range order {
		acc := accums[id]
		calls = append(calls, ToolCall{
			ID:        acc.id,
			Name:      acc.name,
			Arguments: acc.args.String(),
		})
	}

	resp := &Response{
		Content:   text.String(),
		ToolCalls: calls,
		Usage:     usage,
	}
	if len(calls) > 0 {
		resp.FinishReason = "tool_calls"
	} else {
		resp.FinishReason = "stop"
	}
	return resp, nil
}
