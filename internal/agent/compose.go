// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package agent

import (
	"strings"

	"github.com/conductor-ai/conductor/internal/provider"
	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// defaultHistoryTurns is the number of prior conversation turns replayed
// to the model when the caller does not configure a window.
const defaultHistoryTurns = 20

// Attachment is an input file attached to the current instruction.
// Image-like attachments become parts of a multi-part user message;
// other kinds are ignored by the composer.
type Attachment struct {
	Name     string
	MimeType string
	URL      string
}

// IsImage reports whether the attachment is image-like.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// Composer builds the initial message list for a run: system prompt,
// trimmed history, then the current user instruction.
type Composer struct {
	// SystemPrompt is used verbatim; the engine does not prescribe its content.
	SystemPrompt string
	// HistoryTurns bounds how many prior user/assistant turns are replayed.
	HistoryTurns int
}

// Compose returns [system, ...trimmed history, current user message].
// History is filtered to user/assistant roles: system and tool messages
// from prior turns are not replayed. Returns an error only on empty
// instruction, the one hard failure during message preparation.
func (c Composer) Compose(history []provider.Message, instruction string, attachments []Attachment) ([]provider.Message, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, conderr.New(conderr.CodeAgentLoopInvalidInput, "instruction must not be empty")
	}

	turns := c.HistoryTurns
	if turns <= 0 {
		turns = defaultHistoryTurns
	}

	messages := make([]provider.Message, 0, len(history)+2)
	if c.SystemPrompt != "" {
		messages = append(messages, provider.Message{
			Role:    provider.RoleSystem,
			Content: c.SystemPrompt,
		})
	}

	messages = append(messages, trimHistory(history, turns)...)
	messages = append(messages, userMessage(instruction, attachments))
	return messages, nil
}

// trimHistory filters history to user/assistant messages and keeps the
// most recent turns (a turn is a user/assistant message pair, so the
// window is 2*turns messages).
func trimHistory(history []provider.Message, turns int) []provider.Message {
	filtered := make([]provider.Message, 0, len(history))
	for _, msg := range history {
		if msg.Role == provider.RoleUser || msg.Role == provider.RoleAssistant {
			// Tool-call bookkeeping is not replayed across turns.
			msg.ToolCalls = nil
			filtered = append(filtered, msg)
		}
	}

	window := 2 * turns
	if len(filtered) > window {
		filtered = filtered[len(filtered)-window:]
	}
	return filtered
}

// userMessage builds the current user message: plain text unless image
// attachments are present, in which case it becomes multi-part.
func userMessage(instruction string, attachments []Attachment) provider.Message {
	var images []Attachment
	for _, att := range attachments {
		if att.IsImage() {
			images = append(images, att)
		}
	}

	if len(images) == 0 {
		return provider.Message{Role: provider.RoleUser, Content: instruction}
	}

	parts := make([]provider.ContentPart, 0, len(images)+1)
	parts = append(parts, provider.ContentPart{Type: provider.PartTypeText, Text: instruction})
	for _, img := range images {
		parts = append(parts, provider.ContentPart{Type: provider.PartTypeImage, ImageURL: img.URL})
	}
	return provider.Message{Role: provider.RoleUser, Parts: parts}
}
