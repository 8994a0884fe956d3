// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// SSEEvent represents a single server-sent event.
type SSEEvent struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

func (s *Server) registerStreamRoute() {
	s.router.Post("/api/v1/runs/stream", s.handleRunStream)

	// Register the operation in the OpenAPI spec manually. The SSE streaming
	// handler needs raw http.ResponseWriter access, so it cannot use Huma's
	// standard handler signature. We keep the chi route above for actual
	// request handling and add the spec entry here for documentation.
	minInstructionLen := 1
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "stream-run",
		Method:      http.MethodPost,
		Path:        "/api/v1/runs/stream",
		Summary:     "Execute a run with progress streaming",
		Description: "Send an instruction and receive progress events while the run executes. Set Accept: text/event-stream for SSE, otherwise receives a JSON array of events.",
		Tags:        []string{"runs"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {
					Schema: &huma.Schema{
						Type:     "object",
						Required: []string{"instruction"},
						Properties: map[string]*huma.Schema{
							"instruction": {
								Type:        "string",
								MinLength:   &minInstructionLen,
								Description: "What the run should accomplish",
							},
							"model": {
								Type:        "string",
								Description: "Model reference as provider/model",
							},
							"history": {
								Type:        "array",
								Description: "Prior conversation turns",
								Items:       &huma.Schema{Type: "object"},
							},
							"attachments": {
								Type:        "array",
								Description: "Input files for this instruction",
								Items:       &huma.Schema{Type: "object"},
							},
							"max_iterations": {
								Type:        "integer",
								Description: "Cap on model turns; 0 uses the adaptive bound",
							},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Progress stream (SSE or JSON depending on Accept header)",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {
						Schema: &huma.Schema{
							Type:        "string",
							Description: "Server-sent event stream of run progress",
						},
					},
					"application/json": {
						Schema: &huma.Schema{
							Type: "object",
							Properties: map[string]*huma.Schema{
								"events": {
									Type:        "array",
									Description: "Collected events as JSON objects",
									Items:       &huma.Schema{Type: "object"},
								},
							},
						},
					},
				},
			},
			"422": {Description: "Validation error (missing instruction)"},
			"503": {Description: "Run service not configured"},
		},
	})
}

type runStreamRequest struct {
	Instruction   string            `json:"instruction"`
	Model         string            `json:"model,omitempty"`
	History       []Turn            `json:"history,omitempty"`
	Attachments   []AttachmentInput `json:"attachments,omitempty"`
	MaxIterations int               `json:"max_iterations,omitempty"`
}

func (r runStreamRequest) runInput() RunInput {
	return RunInput{
		Instruction:   r.Instruction,
		Model:         r.Model,
		History:       r.History,
		Attachments:   r.Attachments,
		MaxIterations: r.MaxIterations,
	}
}

func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	var req runStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Instruction == "" {
		http.Error(w, `{"error":"instruction is required"}`, http.StatusUnprocessableEntity)
		return
	}

	if s.services == nil {
		http.Error(w, `{"error":"run service not configured"}`, http.StatusServiceUnavailable)
		return
	}

	// Check if client wants SSE or JSON.
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.writeSSE(w, r, req)
		return
	}
	s.writeJSON(w, r, req)
}

func (s *Server) writeSSE(w http.ResponseWriter, r *http.Request, req runStreamRequest) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		// httptest.ResponseRecorder doesn't implement Flusher,
		// but we still write the events for testability.
		flusher = nil
	}

	ch := make(chan SSEEvent, 16)
	go s.services.Runs().StreamRun(r.Context(), req.runInput(), ch)

	for event := range ch {
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, event.Data); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, req runStreamRequest) {
	ch := make(chan SSEEvent, 16)
	go s.services.Runs().StreamRun(r.Context(), req.runInput(), ch)

	var events []json.RawMessage
	for event := range ch {
		raw := []byte(event.Data)
		if !json.Valid(raw) {
			// Wrap non-JSON text as a JSON string so the response stays valid.
			raw, _ = json.Marshal(event.Data)
		}
		events = append(events, raw)
	}

	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Events []json.RawMessage `json:"events"`
	}{Events: events}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, `{"error":"encoding response"}`, http.StatusInternalServerError)
	}
}
