// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package agent

import (
	"regexp"
	"strconv"
	"strings"
)

// Fallback parsing of pseudo-code tool calls.
//
// Some models emit a textual idiom like
//
//	mcp_demo_search(query="x", limit=5)
//
// instead of a structured tool call. This parser recovers such turns
// with a deliberately narrow grammar:
//
//	call  = name "(" [ arg { "," arg } ] ")"
//	arg   = key "=" value
//	value = quoted string | number | true | false | null | bare word
//
// The name must resolve to a registered tool: unknown names never
// match, which keeps ordinary prose containing parentheses from being
// misread as a call. Do not widen this grammar without test coverage
// proving it stays quiet on plain text.

// callCandidate matches an identifier directly followed by an opening
// parenthesis. Argument text is scanned separately to respect quoting.
var callCandidate = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_.\-]*)\s*\(`)

// parseFallbackCall scans text for the first pseudo-code invocation of a
// known tool and returns its name and keyword arguments.
func parseFallbackCall(text string, isTool func(string) bool) (string, map[string]any, bool) {
	for _, loc := range callCandidate.FindAllStringSubmatchIndex(text, -1) {
		name := text[loc[2]:loc[3]]
		if !isTool(name) {
			continue
		}

		argsText, ok := scanArgs(text[loc[1]:])
		if !ok {
			continue
		}
		args, ok := parseKwargs(argsText)
		if !ok {
			continue
		}
		return name, args, true
	}
	return "", nil, false
}

// scanArgs returns the text up to the matching closing parenthesis,
// respecting nested parentheses and quoted strings.
func scanArgs(s string) (string, bool) {
	depth := 1
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[:i], true
			}
		case '\n':
			// A call does not span lines.
			return "", false
		}
	}
	return "", false
}

// parseKwargs parses "key=value, key=value" into a map. A single
// malformed argument rejects the whole candidate.
func parseKwargs(s string) (map[string]any, bool) {
	args := make(map[string]any)
	if strings.TrimSpace(s) == "" {
		return args, true
	}

	for _, raw := range splitTopLevel(s) {
		key, value, found := strings.Cut(raw, "=")
		if !found {
			return nil, false
		}
		key = strings.TrimSpace(key)
		if !isIdentifier(key) {
			return nil, false
		}
		parsed, ok := parseValue(strings.TrimSpace(value))
		if !ok {
			return nil, false
		}
		args[key] = parsed
	}
	return args, true
}

// splitTopLevel splits on commas outside quotes.
func splitTopLevel(s string) []string {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case ',':
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func parseValue(s string) (any, bool) {
	if s == "" {
		return nil, false
	}

	if s[0] == '\'' || s[0] == '"' {
		if len(s) < 2 || s[len(s)-1] != s[0] {
			return nil, false
		}
		return unescape(s[1 : len(s)-1]), true
	}

	switch s {
	case "true", "True":
		return true, true
	case "false", "False":
		return false, true
	case "null", "None", "nil":
		return nil, true
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return float64(n), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}

	if isIdentifier(s) {
		return s, true
	}
	return nil, false
}

// unescape resolves backslash escapes inside a quoted value.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_':
		case ch >= '0' && ch <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
