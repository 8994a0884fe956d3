// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package tools_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/conductor-ai/conductor/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubTool(name string) tools.Tool {
	return &tools.Func{
		ToolName:   name,
		ToolDesc:   "stub",
		ToolSchema: map[string]any{"type": "object"},
		CallFunc: func(_ context.Context, _ map[string]any) (any, error) {
			return "ok", nil
		},
	}
}

func TestRegistry_LookupAndDefinitions(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(stubTool("alpha"), tools.WithCategory(tools.CategoryCompute))
	reg.Register(stubTool("beta"), tools.WithCategory(tools.CategoryArtifact))

	got, ok := reg.Lookup("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", got.Name())

	_, ok = reg.Lookup("ghost")
	assert.False(t, ok)

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, []string{"alpha", "beta"}, []string{defs[0].Name, defs[1].Name},
		"definitions preserve registration order")

	assert.Equal(t, tools.CategoryCompute, reg.CategoryOf("alpha"))
	assert.Equal(t, tools.CategoryArtifact, reg.CategoryOf("beta"))
	assert.Equal(t, tools.CategoryOther, reg.CategoryOf("ghost"))
}

func TestRegistry_TimeoutClasses(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(stubTool("quick"))
	reg.Register(stubTool("spawn"), tools.WithCategory(tools.CategorySession))
	reg.Register(stubTool("custom"), tools.WithTimeout(90*time.Second))

	assert.Equal(t, tools.DefaultTimeout, reg.TimeoutFor("quick"))
	assert.Equal(t, tools.SessionTimeout, reg.TimeoutFor("spawn"))
	assert.Equal(t, 90*time.Second, reg.TimeoutFor("custom"))
	assert.Equal(t, tools.DefaultTimeout, reg.TimeoutFor("ghost"))
}

func TestBuiltins_CalcEval(t *testing.T) {
	reg := tools.NewRegistry()
	tools.RegisterBuiltins(reg, nil)

	calc, ok := reg.Lookup("calc.eval")
	require.True(t, ok)
	assert.Equal(t, tools.CategoryCompute, reg.CategoryOf("calc.eval"))

	tests := []struct {
		expr string
		want float64
	}{
		{"2+2", 4},
		{"(2+2)*10", 40},
		{"1 - 2 * 3", -5},
		{"-4/2", -2},
		{"3.5 + 0.5", 4},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			out, err := calc.Call(context.Background(), map[string]any{"expression": tt.expr})
			require.NoError(t, err)
			result := out.(map[string]any)
			assert.InDelta(t, tt.want, result["value"], 1e-9)
		})
	}

	for _, expr := range []string{"", "2+", "1/0", "(1+2", "2 & 3"} {
		_, err := calc.Call(context.Background(), map[string]any{"expression": expr})
		assert.Error(t, err, "expression %q should fail", expr)
	}
}

func TestBuiltins_ReportRenderSignsOutput(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	reg := tools.NewRegistry()
	tools.RegisterBuiltins(reg, priv)

	report, ok := reg.Lookup("report.render")
	require.True(t, ok)
	assert.Equal(t, tools.CategoryArtifact, reg.CategoryOf("report.render"))

	out, err := report.Call(context.Background(), map[string]any{
		"title": "Summary",
		"body":  "All systems nominal.",
	})
	require.NoError(t, err)

	signed, ok := out.(*tools.SignedResult)
	require.True(t, ok, "report output should carry signature metadata")
	assert.Contains(t, signed.Output.(map[string]any)["artifact"], "# Summary")

	payload, err := json.Marshal(signed.Output)
	require.NoError(t, err)
	sig, err := hex.DecodeString(signed.Signature)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, payload, sig))
}

func TestBuiltins_ReportRenderWithoutKey(t *testing.T) {
	reg := tools.NewRegistry()
	tools.RegisterBuiltins(reg, nil)

	report, _ := reg.Lookup("report.render")
	out, err := report.Call(context.Background(), map[string]any{"body": "plain"})
	require.NoError(t, err)

	_, isSigned := out.(*tools.SignedResult)
	assert.False(t, isSigned, "no key means unsigned output")
}
