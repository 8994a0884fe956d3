// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package agent

import (
	"encoding/json"
	"strings"
)

// fillerAcknowledgements are generic closing phrases that carry no
// information for the user. Compared case-insensitively after trimming
// trailing punctuation.
var fillerAcknowledgements = map[string]bool{
	"done":           true,
	"ok":             true,
	"okay":           true,
	"sure":           true,
	"completed":      true,
	"complete":       true,
	"finished":       true,
	"task completed": true,
	"task complete":  true,
	"all done":       true,
}

// looksEmpty classifies model text that conveys nothing to the user:
// blank strings, filler acknowledgements, and trivial JSON shapes
// (empty object/array, null, or an object whose only key is a boolean
// "success"; the value is deliberately ignored).
func looksEmpty(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}

	normalized := strings.ToLower(strings.TrimRight(trimmed, ".!"))
	if fillerAcknowledgements[normalized] {
		return true
	}

	return trivialJSON(trimmed)
}

// trivialJSON reports whether s parses as JSON that carries no payload.
func trivialJSON(s string) bool {
	if len(s) == 0 {
		return false
	}
	switch s[0] {
	case '{', '[', 'n':
	default:
		return false
	}

	var value any
	if err := json.Unmarshal([]byte(s), &value); err != nil {
		return false
	}

	switch v := value.(type) {
	case nil:
		return true
	case []any:
		return len(v) == 0
	case map[string]any:
		if len(v) == 0 {
			return true
		}
		if len(v) == 1 {
			if _, isBool := v["success"].(bool); isBool {
				return true
			}
		}
		return false
	default:
		return false
	}
}
