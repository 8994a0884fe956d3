// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package tools

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// Func adapts a plain function into a Tool.
type Func struct {
	ToolName   string
	ToolDesc   string
	ToolSchema map[string]any
	CallFunc   func(ctx context.Context, args map[string]any) (any, error)
}

func (f *Func) Name() string           { return f.ToolName }
func (f *Func) Description() string    { return f.ToolDesc }
func (f *Func) Schema() map[string]any { return f.ToolSchema }

func (f *Func) Call(ctx context.Context, args map[string]any) (any, error) {
	return f.CallFunc(ctx, args)
}

// RegisterBuiltins adds the built-in demo tools: a clock, a calculator
// (compute category), and a report renderer (artifact category) that
// signs its output with the given key. A nil key disables signing.
func RegisterBuiltins(r *Registry, signingKey ed25519.PrivateKey) {
	r.Register(clockTool(), WithCategory(CategoryOther))
	r.Register(calcTool(), WithCategory(CategoryCompute))
	r.Register(reportTool(signingKey), WithCategory(CategoryArtifact))
}

func clockTool() Tool {
	return &Func{
		ToolName: "clock.now",
		ToolDesc: "Returns the current time in RFC 3339 format, optionally in a named IANA timezone.",
		ToolSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone name, e.g. Europe/Berlin. Defaults to UTC.",
				},
			},
		},
		CallFunc: func(_ context.Context, args map[string]any) (any, error) {
			loc := time.UTC
			if tz, ok := args["timezone"].(string); ok && tz != "" {
				parsed, err := time.LoadLocation(tz)
				if err != nil {
					return nil, conderr.Wrapf(err, conderr.CodeAgentToolFailure, "unknown timezone %q", tz)
				}
				loc = parsed
			}
			return map[string]any{"now": time.Now().In(loc).Format(time.RFC3339)}, nil
		},
	}
}

func calcTool() Tool {
	return &Func{
		ToolName: "calc.eval",
		ToolDesc: "Evaluates an arithmetic expression with +, -, *, / and parentheses.",
		ToolSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Arithmetic expression, e.g. \"(2+2)*10\".",
				},
			},
			"required": []any{"expression"},
		},
		CallFunc: func(_ context.Context, args map[string]any) (any, error) {
			expr, _ := args["expression"].(string)
			if strings.TrimSpace(expr) == "" {
				return nil, conderr.New(conderr.CodeAgentToolFailure, "expression is required")
			}
			value, err := evalExpr(expr)
			if err != nil {
				return nil, err
			}
			return map[string]any{"expression": expr, "value": value}, nil
		},
	}
}

func reportTool(key ed25519.PrivateKey) Tool {
	return &Func{
		ToolName: "report.render",
		ToolDesc: "Renders computed data into a markdown report artifact for the user.",
		ToolSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{"type": "string"},
				"body":  map[string]any{"type": "string", "description": "Markdown body of the report."},
			},
			"required": []any{"body"},
		},
		CallFunc: func(_ context.Context, args map[string]any) (any, error) {
			title, _ := args["title"].(string)
			body, _ := args["body"].(string)
			if body == "" {
				return nil, conderr.New(conderr.CodeAgentToolFailure, "body is required")
			}

			var b strings.Builder
			if title != "" {
				b.WriteString("# " + title + "\n\n")
			}
			b.WriteString(body)
			output := map[string]any{"artifact": b.String(), "format": "markdown"}

			if key == nil {
				return output, nil
			}
			payload, err := json.Marshal(output)
			if err != nil {
				return nil, conderr.Wrap(err, conderr.CodeAgentToolFailure, "encoding report for signing")
			}
			return &SignedResult{
				Output:    output,
				Signature: hex.EncodeToString(ed25519.Sign(key, payload)),
			}, nil
		},
	}
}

// evalExpr evaluates expr with a small recursive-descent parser.
// Grammar: expr = term {("+"|"-") term}; term = factor {("*"|"/") factor};
// factor = number | "(" expr ")" | "-" factor.
func evalExpr(expr string) (float64, error) {
	p := &exprParser{input: expr}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return 0, conderr.Errorf(conderr.CodeAgentToolFailure,
			"unexpected input at offset %d in %q", p.pos, expr)
	}
	return value, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/') {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
		} else {
			if right == 0 {
				return 0, conderr.New(conderr.CodeAgentToolFailure, "division by zero")
			}
			left /= right
		}
	}
}

func (p *exprParser) parseFactor() (float64, error) {
	ch, ok := p.peek()
	if !ok {
		return 0, conderr.New(conderr.CodeAgentToolFailure, "unexpected end of expression")
	}

	switch {
	case ch == '(':
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if next, ok := p.peek(); !ok || next != ')' {
			return 0, conderr.New(conderr.CodeAgentToolFailure, "missing closing parenthesis")
		}
		p.pos++
		return value, nil

	case ch == '-':
		p.pos++
		value, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return -value, nil

	default:
		start := p.pos
		for p.pos < len(p.input) && (isDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
			p.pos++
		}
		if start == p.pos {
			return 0, conderr.Errorf(conderr.CodeAgentToolFailure,
				"unexpected character %q at offset %d", string(ch), p.pos)
		}
		value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
		if err != nil {
			return 0, conderr.Wrapf(err, conderr.CodeAgentToolFailure,
				"parsing number %q", p.input[start:p.pos])
		}
		return value, nil
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
