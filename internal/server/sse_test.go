// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-ai/conductor/internal/server"
)

func streamRequest(body, accept string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return req
}

func TestRunStream_SSEFraming(t *testing.T) {
	runs := &mockRunService{events: []server.SSEEvent{
		{Event: "start", Data: `{"kind":"start","run_id":"run-1"}`},
		{Event: "text_delta", Data: `{"kind":"text_delta","text":"The total"}`},
		{Event: "finished", Data: `{"kind":"finished","text":"The total is 42."}`},
	}}
	srv, _ := newTestServer(t, runs)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, streamRequest(`{"instruction": "sum"}`, "text/event-stream"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: start\ndata: {\"kind\":\"start\",\"run_id\":\"run-1\"}\n\n")
	assert.Contains(t, body, "event: text_delta\n")
	assert.Contains(t, body, "event: finished\n")

	// Events arrive in emission order.
	assert.Less(t, strings.Index(body, "event: start"), strings.Index(body, "event: finished"))
}

func TestRunStream_JSONFallback(t *testing.T) {
	runs := &mockRunService{events: []server.SSEEvent{
		{Event: "start", Data: `{"kind":"start","run_id":"run-1"}`},
		{Event: "finished", Data: `{"kind":"finished","text":"done"}`},
	}}
	srv, _ := newTestServer(t, runs)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, streamRequest(`{"instruction": "sum"}`, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Events []map[string]any `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "start", resp.Events[0]["kind"])
	assert.Equal(t, "finished", resp.Events[1]["kind"])
}

func TestRunStream_JSONFallbackWrapsPlainText(t *testing.T) {
	runs := &mockRunService{events: []server.SSEEvent{
		{Event: "note", Data: "not json"},
	}}
	srv, _ := newTestServer(t, runs)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, streamRequest(`{"instruction": "sum"}`, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Events []json.RawMessage `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, `"not json"`, string(resp.Events[0]))
}

func TestRunStream_MissingInstruction(t *testing.T) {
	srv, _ := newTestServer(t, &mockRunService{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, streamRequest(`{}`, "text/event-stream"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRunStream_InvalidBody(t *testing.T) {
	srv, _ := newTestServer(t, &mockRunService{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, streamRequest(`{not json`, "text/event-stream"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunStream_NoServicesConfigured(t *testing.T) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, streamRequest(`{"instruction": "sum"}`, "text/event-stream"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunStream_ForwardsRequestFields(t *testing.T) {
	runs := &mockRunService{}
	srv, _ := newTestServer(t, runs)

	body := `{
		"instruction": "describe the chart",
		"model": "google/gemini-2.5-flash",
		"history": [{"role": "user", "content": "earlier question"}],
		"attachments": [{"name": "chart.png", "media_type": "image/png", "url": "https://example.com/chart.png"}],
		"max_iterations": 4
	}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, streamRequest(body, "text/event-stream"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "describe the chart", runs.lastInput.Instruction)
	assert.Equal(t, "google/gemini-2.5-flash", runs.lastInput.Model)
	require.Len(t, runs.lastInput.History, 1)
	assert.Equal(t, "user", runs.lastInput.History[0].Role)
	require.Len(t, runs.lastInput.Attachments, 1)
	assert.Equal(t, "image/png", runs.lastInput.Attachments[0].MediaType)
	assert.Equal(t, 4, runs.lastInput.MaxIterations)
}
