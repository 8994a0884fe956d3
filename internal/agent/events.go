// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package agent

import (
	"time"
)

// EventKind identifies a progress event. The set is closed; observers
// must tolerate unknown kinds for forward compatibility but the engine
// only emits these.
type EventKind string

const (
	EventStart         EventKind = "start"
	EventReasoningStep EventKind = "reasoning_step"
	EventToolCall      EventKind = "tool_call"
	EventToolResponse  EventKind = "tool_response"
	EventTextDelta     EventKind = "text_delta"
	EventError         EventKind = "error"
	EventFinished      EventKind = "finished"
)

// ProgressEvent describes one step of a run's lifecycle. Events are
// purely observational: the engine never reads state back from a sink.
type ProgressEvent struct {
	Kind      EventKind      `json:"kind"`
	RunID     string         `json:"run_id"`
	Iteration int            `json:"iteration,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Output    any            `json:"output,omitempty"`
	Text      string         `json:"text,omitempty"`
	Error     string         `json:"error,omitempty"`
	Signature string         `json:"signature,omitempty"`
	Cached    bool           `json:"cached,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink accepts progress events. Implementations must not block; the
// engine behaves identically whether or not a sink is attached.
type Sink interface {
	Emit(ev ProgressEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(ProgressEvent) {}

// ChanSink forwards events to a buffered channel, dropping events when
// the consumer falls behind rather than blocking the run.
type ChanSink struct {
	ch chan ProgressEvent
}

// NewChanSink creates a ChanSink with the given buffer size.
func NewChanSink(buffer int) *ChanSink {
	if buffer <= 0 {
		buffer = 200
	}
	return &ChanSink{ch: make(chan ProgressEvent, buffer)}
}

// Emit enqueues the event, dropping it if the buffer is full.
func (s *ChanSink) Emit(ev ProgressEvent) {
	select {
	case s.ch <- ev:
	default:
	}
}

// Events returns the receive side of the sink.
func (s *ChanSink) Events() <-chan ProgressEvent {
	return s.ch
}

// Close closes the event channel. Emit must not be called after Close.
func (s *ChanSink) Close() {
	close(s.ch)
}

func stamp(ev ProgressEvent) ProgressEvent {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

func emit(sink Sink, ev ProgressEvent) {
	if sink == nil {
		return
	}
	sink.Emit(stamp(ev))
}
