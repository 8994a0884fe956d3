// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package agent

import (
	"time"

	"github.com/conductor-ai/conductor/internal/provider"
	"github.com/conductor-ai/conductor/internal/tools"
)

// runState holds all mutable state for a single Analyze invocation. It is
// created per call, owned exclusively by the Runner/Dispatcher pairing,
// and destroyed when the call returns. Nothing in here is ever shared
// across concurrent runs.
type runState struct {
	runID    string
	messages []provider.Message
	// runStart is the index of the first message appended during this
	// run; everything before it is the composed prelude (system prompt,
	// trimmed history, current instruction).
	runStart int

	// dedup maps dedupKey → first execution output for this run.
	dedup map[string]any

	// categoriesSeen tracks which tool categories have produced a
	// successful call so far, for the dispatcher's guidance rules.
	categoriesSeen map[tools.Category]bool

	// firedRules tracks guidance rules that already injected their
	// message, keyed by rule index.
	firedRules map[int]bool

	iteration     int
	maxIterations int
}

func newRunState(runID string, composed []provider.Message, maxIterations int) *runState {
	return &runState{
		runID:          runID,
		messages:       composed,
		runStart:       len(composed),
		dedup:          make(map[string]any),
		categoriesSeen: make(map[tools.Category]bool),
		firedRules:     make(map[int]bool),
		maxIterations:  maxIterations,
	}
}

// append adds a message to the run log, stamping it. The log only grows.
func (rs *runState) append(msg provider.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	rs.messages = append(rs.messages, msg)
}

// runMessages returns the messages appended during this run.
func (rs *runState) runMessages() []provider.Message {
	return rs.messages[rs.runStart:]
}

// lastAssistantContent returns the content of the most recent non-blank
// assistant message appended during this run, or "".
func (rs *runState) lastAssistantContent() string {
	run := rs.runMessages()
	for i := len(run) - 1; i >= 0; i-- {
		if run[i].Role == provider.RoleAssistant && run[i].Content != "" {
			return run[i].Content
		}
	}
	return ""
}

// lastToolResult returns the most recent tool-result message appended
// during this run, or nil.
func (rs *runState) lastToolResult() *provider.Message {
	run := rs.runMessages()
	for i := len(run) - 1; i >= 0; i-- {
		if run[i].Role == provider.RoleTool {
			return &run[i]
		}
	}
	return nil
}
