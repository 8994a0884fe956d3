// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "create-run",
		Method:      http.MethodPost,
		Path:        "/api/v1/runs",
		Summary:     "Execute an orchestration run",
		Description: "Send an instruction and receive the final answer after the tool-calling loop finishes. Use /api/v1/runs/stream for incremental progress.",
		Tags:        []string{"runs"},
	}, s.handleCreateRun)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-tools",
		Method:      http.MethodGet,
		Path:        "/api/v1/tools",
		Summary:     "List registered tools",
		Tags:        []string{"tools"},
	}, s.handleListTools)

	if s.services.History() != nil {
		huma.Register(s.api, huma.Operation{
			OperationID: "get-run",
			Method:      http.MethodGet,
			Path:        "/api/v1/runs/{id}",
			Summary:     "Fetch a stored run",
			Tags:        []string{"runs"},
		}, s.handleGetRun)

		huma.Register(s.api, huma.Operation{
			OperationID: "list-runs",
			Method:      http.MethodGet,
			Path:        "/api/v1/runs",
			Summary:     "List stored runs",
			Description: "Returns persisted runs ordered newest first.",
			Tags:        []string{"runs"},
		}, s.handleListRuns)
	}
}

// --- Request/Response types for huma ---

type createRunInput struct {
	Body struct {
		Instruction   string            `json:"instruction" minLength:"1" doc:"What the run should accomplish"`
		Model         string            `json:"model,omitempty" doc:"Model reference as provider/model; empty uses the default"`
		History       []Turn            `json:"history,omitempty" doc:"Prior conversation turns"`
		Attachments   []AttachmentInput `json:"attachments,omitempty" doc:"Input files for this instruction"`
		MaxIterations int               `json:"max_iterations,omitempty" minimum:"0" doc:"Cap on model turns; 0 uses the adaptive bound"`
	}
}

type createRunOutput struct {
	Body RunOutput
}

type listToolsOutput struct {
	Body struct {
		Tools []ToolSummary `json:"tools"`
	}
}

type getRunInput struct {
	ID string `path:"id" doc:"Run identifier"`
}

type getRunOutput struct {
	Body StoredRun
}

type listRunsInput struct {
	Limit  int `query:"limit" minimum:"0" maximum:"500" doc:"Maximum rows to return (default 100)"`
	Offset int `query:"offset" minimum:"0" doc:"Rows to skip"`
}

type listRunsOutput struct {
	Body struct {
		Runs []RunSummary `json:"runs"`
	}
}

// --- Handlers ---

func (s *Server) handleCreateRun(ctx context.Context, input *createRunInput) (*createRunOutput, error) {
	result, err := s.services.Runs().Run(ctx, RunInput{
		Instruction:   input.Body.Instruction,
		Model:         input.Body.Model,
		History:       input.Body.History,
		Attachments:   input.Body.Attachments,
		MaxIterations: input.Body.MaxIterations,
	})
	if err != nil {
		if conderr.IsInvalidInput(err) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		if conderr.IsNotFound(err) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error502BadGateway("executing run", err)
	}
	return &createRunOutput{Body: *result}, nil
}

func (s *Server) handleListTools(ctx context.Context, _ *struct{}) (*listToolsOutput, error) {
	out := &listToolsOutput{}
	out.Body.Tools = s.services.Tools().List(ctx)
	return out, nil
}

func (s *Server) handleGetRun(ctx context.Context, input *getRunInput) (*getRunOutput, error) {
	run, err := s.services.History().GetRun(ctx, input.ID)
	if err != nil {
		if conderr.IsNotFound(err) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error500InternalServerError("fetching run", err)
	}
	return &getRunOutput{Body: *run}, nil
}

func (s *Server) handleListRuns(ctx context.Context, input *listRunsInput) (*listRunsOutput, error) {
	runs, err := s.services.History().ListRuns(ctx, input.Limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing runs", err)
	}
	out := &listRunsOutput{}
	out.Body.Runs = runs
	return out, nil
}
