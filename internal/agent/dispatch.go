// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/conductor-ai/conductor/internal/provider"
	"github.com/conductor-ai/conductor/internal/tools"
)

// ToolCallRecord is the dispatcher's bookkeeping for one resolved call.
type ToolCallRecord struct {
	Request   provider.ToolCall
	Args      map[string]any
	DedupKey  string
	Output    any
	Succeeded bool
	Cached    bool
	TimedOut  bool
}

// GuidanceRule injects a system-role guidance message after a successful
// call in the After category, unless a call in the UnlessSeen category
// has already succeeded in this run. Rules are soft nudges, expressed as
// additional messages, never constraints on what the model may do next.
type GuidanceRule struct {
	After      tools.Category
	UnlessSeen tools.Category
	Once       bool
	Message    string
}

// DefaultGuidanceRules steers the model from raw computation toward a
// user-facing artifact, then toward evaluating sufficiency instead of
// re-running compute tools.
func DefaultGuidanceRules() []GuidanceRule {
	return []GuidanceRule{
		{
			After:      tools.CategoryCompute,
			UnlessSeen: tools.CategoryArtifact,
			Once:       true,
			Message: "The computed data is available above. If the user asked for a chart, " +
				"report, or other artifact, create it now with an artifact tool before answering.",
		},
		{
			After: tools.CategoryArtifact,
			Once:  true,
			Message: "An artifact was produced. Evaluate whether the results above are " +
				"sufficient to answer the user before running further compute tools.",
		},
	}
}

// UnroutedHandler resolves calls whose tool name is not in the registry.
type UnroutedHandler func(ctx context.Context, name string, args map[string]any) (any, error)

// Dispatcher executes one iteration's batch of tool calls: deduplicated
// against the run-scoped cache, concurrently, each racing its own
// timeout. One call's failure never cancels or blocks its siblings.
type Dispatcher struct {
	registry *tools.Registry
	sink     Sink
	rules    []GuidanceRule
	unrouted UnroutedHandler
}

// DispatcherConfig holds Dispatcher dependencies.
type DispatcherConfig struct {
	Registry *tools.Registry
	Sink     Sink
	Rules    []GuidanceRule
	// HandleUnroutedTool is an optional extension point for tools the
	// registry does not know (e.g. dynamically discovered ones).
	HandleUnroutedTool UnroutedHandler
}

// NewDispatcher creates a Dispatcher. Nil Rules means the defaults.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultGuidanceRules()
	}
	return &Dispatcher{
		registry: cfg.Registry,
		sink:     cfg.Sink,
		rules:    rules,
		unrouted: cfg.HandleUnroutedTool,
	}
}

// Dispatch runs the batch and appends all tool-result messages (and any
// triggered guidance messages) to the run log as one atomic unit before
// returning. Records come back in the batch's original call order.
func (d *Dispatcher) Dispatch(ctx context.Context, rs *runState, calls []provider.ToolCall) []ToolCallRecord {
	records := make([]ToolCallRecord, len(calls))

	// Resolve arguments and dedup keys, and decide which records
	// actually execute: the first occurrence of each key not already
	// cached from a previous iteration.
	executing := make(map[string]int) // dedupKey → record index that runs it
	for i, call := range calls {
		args := parseArgs(call.Arguments)
		key := DedupKey(call.Name, args)
		records[i] = ToolCallRecord{Request: call, Args: args, DedupKey: key}

		if _, hit := rs.dedup[key]; hit {
			records[i].Cached = true
			continue
		}
		if _, claimed := executing[key]; claimed {
			records[i].Cached = true
			continue
		}
		executing[key] = i
	}

	for i := range records {
		emit(d.sink, ProgressEvent{
			Kind:      EventToolCall,
			RunID:     rs.runID,
			Iteration: rs.iteration,
			Tool:      records[i].Request.Name,
			Args:      records[i].Args,
			Cached:    records[i].Cached,
		})
	}

	// Settle-all join: every executing call gets its own goroutine and
	// its own timeout; a hanging sibling only blocks its own slot.
	var wg sync.WaitGroup
	for _, idx := range executing {
		wg.Add(1)
		go func(rec *ToolCallRecord) {
			defer wg.Done()
			rec.Output, rec.Succeeded, rec.TimedOut = d.executeOne(ctx, rec.Request.Name, rec.Args)
		}(&records[idx])
	}
	wg.Wait()

	// Populate the run cache, then serve duplicates from it.
	for key, idx := range executing {
		rs.dedup[key] = records[idx].Output
	}
	for i := range records {
		if records[i].Cached {
			records[i].Output = rs.dedup[records[i].DedupKey]
			records[i].Succeeded = !isErrorOutput(records[i].Output)
		}
	}

	for i := range records {
		rec := &records[i]
		ev := ProgressEvent{
			Kind:      EventToolResponse,
			RunID:     rs.runID,
			Iteration: rs.iteration,
			Tool:      rec.Request.Name,
			Output:    rec.Output,
			Cached:    rec.Cached,
			Signature: signatureOf(rec.Output),
		}
		if !rec.Succeeded {
			ev.Error = errorDetail(rec.Output)
		}
		emit(d.sink, ev)

		rs.append(provider.Message{
			Role:       provider.RoleTool,
			Content:    renderOutput(rec.Output),
			ToolCallID: rec.Request.ID,
			ToolName:   rec.Request.Name,
		})
	}

	d.applyGuidance(rs, records)
	return records
}

// applyGuidance evaluates the declarative side-effect rules against the
// batch, in call order, injecting system messages for rules that fire.
func (d *Dispatcher) applyGuidance(rs *runState, records []ToolCallRecord) {
	for _, rec := range records {
		if !rec.Succeeded {
			continue
		}
		category := d.registry.CategoryOf(rec.Request.Name)

		for i, rule := range d.rules {
			if rule.After != category {
				continue
			}
			if rule.Once && rs.firedRules[i] {
				continue
			}
			if rule.UnlessSeen != "" && rs.categoriesSeen[rule.UnlessSeen] {
				continue
			}
			rs.firedRules[i] = true
			rs.append(provider.Message{
				Role:    provider.RoleSystem,
				Content: rule.Message,
			})
		}

		rs.categoriesSeen[category] = true
	}
}

// executeOne races the tool against its class timeout. A timed-out tool
// keeps its goroutine (there is no preemption primitive) but its late
// result is discarded.
func (d *Dispatcher) executeOne(ctx context.Context, name string, args map[string]any) (output any, succeeded, timedOut bool) {
	tool, found := d.registry.Lookup(name)
	if !found && d.unrouted == nil {
		return map[string]any{"error": fmt.Sprintf("unknown tool %q", name)}, false, false
	}

	timeout := d.registry.TimeoutFor(name)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		var value any
		var err error
		if found {
			value, err = tool.Call(execCtx, args)
		} else {
			value, err = d.unrouted(execCtx, name, args)
		}
		resultCh <- outcome{value: value, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return map[string]any{"error": res.err.Error()}, false, false
		}
		return res.value, !isErrorOutput(res.value), false
	case <-execCtx.Done():
		return map[string]any{
			"error": fmt.Sprintf("tool %q timed out after %s", name, timeout),
		}, false, true
	}
}

// parseArgs decodes serialized arguments, treating malformed input as
// an empty argument map rather than failing the call.
func parseArgs(raw string) map[string]any {
	args := make(map[string]any)
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return make(map[string]any)
	}
	return args
}

// DedupKey derives the run-scoped deduplication key for a call: the tool
// name plus its arguments serialized with sorted keys at every level, so
// key order never affects identity.
func DedupKey(name string, args map[string]any) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteString("::")
	writeCanonical(&b, args)
	return b.String()
}

func writeCanonical(b *strings.Builder, value any) {
	switch v := value.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(v))
	case float64:
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case string:
		encoded, _ := json.Marshal(v)
		b.Write(encoded)
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encoded, _ := json.Marshal(k)
			b.Write(encoded)
			b.WriteByte(':')
			writeCanonical(b, v[k])
		}
		b.WriteByte('}')
	default:
		// Values outside the JSON type set only appear when a caller
		// hands in pre-built argument maps; fall back to encoding/json.
		encoded, err := json.Marshal(v)
		if err != nil {
			fmt.Fprintf(b, "%v", v)
			return
		}
		b.Write(encoded)
	}
}

// isErrorOutput reports whether an output value is shaped {error: string},
// which the dispatcher treats as a failure even without a returned error.
func isErrorOutput(output any) bool {
	m, ok := output.(map[string]any)
	if !ok {
		return false
	}
	_, hasError := m["error"].(string)
	return hasError
}

func errorDetail(output any) string {
	if m, ok := output.(map[string]any); ok {
		if msg, ok := m["error"].(string); ok {
			return msg
		}
	}
	return ""
}

// signatureOf extracts signature metadata when the tool attested its
// result; empty otherwise.
func signatureOf(output any) string {
	if signed, ok := output.(*tools.SignedResult); ok {
		return signed.Signature
	}
	return ""
}

// renderOutput serializes a tool output for the conversation log.
func renderOutput(output any) string {
	switch v := output.(type) {
	case nil:
		return "null"
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
