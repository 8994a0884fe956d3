// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package provider

import (
	"context"
	"time"
)

// Endpoint is the core interface for language-model endpoints.
// Implementations wrap upstream transport errors into coded errors
// (pkg/errors) so the Gateway can classify them for retry.
type Endpoint interface {
	Name() string
	// Complete issues a request and returns one complete response.
	Complete(ctx context.Context, req Request) (*Response, error)
	// Stream issues a request and returns an ordered event sequence.
	// The channel is closed after a done or error event.
	Stream(ctx context.Context, req Request) (<-chan Event, error)
	Close() error
}

// Request represents a request to the model endpoint.
type Request struct {
	Model        string
	Messages     []Message
	Tools        []ToolDefinition
	ToolChoice   string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
}

// Response is a complete (non-streaming) model response.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	Usage        *Usage
	FinishReason string
}

// Message represents a conversation message. Assistant messages that
// requested tool calls carry them in ToolCalls; tool-result messages
// reference their originating call via ToolCallID.
type Message struct {
	Role       Role
	Content    string
	Parts      []ContentPart
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
	Timestamp  time.Time
}

// ContentPart is one element of a multi-part message (text plus attachments).
type ContentPart struct {
	Type     PartType
	Text     string
	ImageURL string
}

// PartType identifies the kind of a ContentPart.
type PartType string

const (
	PartTypeText  PartType = "text"
	PartTypeImage PartType = "image"
)

// Role defines the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolDefinition describes a tool available to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall represents a structured tool invocation by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// Event is a streaming response event.
type Event struct {
	Type     EventType
	Text     string
	ToolCall *ToolCallDelta
	Usage    *Usage
	Error    string
}

// EventType defines the type of streaming event.
type EventType string

const (
	EventTypeTextDelta     EventType = "text_delta"
	EventTypeToolCallStart EventType = "tool_call_start"
	EventTypeToolCallDelta EventType = "tool_call_delta"
	EventTypeToolCallDone  EventType = "tool_call_done"
	EventTypeUsage         EventType = "usage"
	EventTypeDone          EventType = "done"
	EventTypeError         EventType = "error"
)

// ToolCallDelta carries incremental tool-call state. ID is present on every
// delta; Name is set on the start event; ArgsDelta is a fragment of the
// serialized arguments and is not guaranteed to parse until the call is done.
type ToolCallDelta struct {
	ID        string
	Name      string
	ArgsDelta string
}

// Usage tracks token consumption for one model call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Estimated    bool
}
