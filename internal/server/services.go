// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package server

import (
	"context"
	"time"

	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be mocked in tests.
// Use NewServices to ensure all required services are provided.
type Services struct {
	runs      RunService
	tools     ToolService
	providers ProviderService // optional; nil = no provider status in /health
	history   HistoryService  // optional; nil = run lookup routes return 404
}

// ServiceOption configures optional services on Services.
type ServiceOption func(*Services)

// WithProviderService adds provider availability to the health endpoint.
func WithProviderService(p ProviderService) ServiceOption {
	return func(s *Services) { s.providers = p }
}

// WithHistoryService enables the stored-run lookup routes.
func WithHistoryService(h HistoryService) ServiceOption {
	return func(s *Services) { s.history = h }
}

// NewServices creates a Services instance with validation.
func NewServices(runs RunService, tools ToolService, opts ...ServiceOption) (*Services, error) {
	if runs == nil {
		return nil, conderr.New(conderr.CodeServerConfigInvalid, "run service is required")
	}
	if tools == nil {
		return nil, conderr.New(conderr.CodeServerConfigInvalid, "tool service is required")
	}
	s := &Services{runs: runs, tools: tools}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Runs returns the run service.
func (s *Services) Runs() RunService { return s.runs }

// Tools returns the tool service.
func (s *Services) Tools() ToolService { return s.tools }

// Providers returns the optional provider status service.
func (s *Services) Providers() ProviderService { return s.providers }

// History returns the optional stored-run service.
func (s *Services) History() HistoryService { return s.history }

// RunInput carries one orchestration run request across the service
// boundary.
type RunInput struct {
	Instruction string
	Model       string
	History     []Turn
	Attachments []AttachmentInput
	// MaxIterations overrides the engine's adaptive loop bound when positive.
	MaxIterations int
}

// Turn is one prior conversation message supplied by the client.
type Turn struct {
	Role    string `json:"role" enum:"user,assistant" doc:"Message author"`
	Content string `json:"content" doc:"Message text"`
}

// AttachmentInput references an input file by URL.
type AttachmentInput struct {
	Name      string `json:"name,omitempty" doc:"Display name"`
	MediaType string `json:"media_type" doc:"MIME type, e.g. image/png"`
	URL       string `json:"url" doc:"Fetchable location of the file"`
}

// RunOutput is the REST representation of a finished run.
type RunOutput struct {
	RunID      string      `json:"run_id" doc:"Run identifier"`
	Content    string      `json:"content" doc:"Final answer text"`
	Outcome    string      `json:"outcome" enum:"completed,ran_out_of_turns,aborted" doc:"How the run ended"`
	Iterations int         `json:"iterations" doc:"Model turns used"`
	Usage      UsageOutput `json:"usage" doc:"Token usage"`
}

// UsageOutput reports token consumption for a run.
type UsageOutput struct {
	InputTokens  int  `json:"input_tokens" doc:"Prompt tokens"`
	OutputTokens int  `json:"output_tokens" doc:"Completion tokens"`
	TotalTokens  int  `json:"total_tokens" doc:"Total tokens"`
	Estimated    bool `json:"estimated,omitempty" doc:"True when counts are byte-length estimates"`
}

// ToolSummary is the REST representation of a registered tool.
type ToolSummary struct {
	Name        string `json:"name" doc:"Tool name"`
	Description string `json:"description" doc:"What the tool does"`
	Category    string `json:"category,omitempty" doc:"Guidance category (compute, artifact, ...)"`
	Timeout     string `json:"timeout" doc:"Per-call execution timeout"`
}

// StoredRun is the REST representation of a persisted run.
type StoredRun struct {
	RunOutput
	Instruction string    `json:"instruction" doc:"Instruction the run executed"`
	Model       string    `json:"model,omitempty" doc:"Model reference used"`
	CreatedAt   time.Time `json:"created_at" doc:"When the run finished"`
}

// RunSummary is one row in a stored-run listing.
type RunSummary struct {
	RunID       string    `json:"run_id" doc:"Run identifier"`
	Instruction string    `json:"instruction" doc:"Instruction the run executed"`
	Model       string    `json:"model,omitempty" doc:"Model reference used"`
	Outcome     string    `json:"outcome" doc:"How the run ended"`
	CreatedAt   time.Time `json:"created_at" doc:"When the run finished"`
}

// ProviderStatus reports one model provider's availability.
type ProviderStatus struct {
	Name      string `json:"name" doc:"Provider name"`
	Available bool   `json:"available" doc:"Whether the provider is accepting requests"`
}

// RunService executes orchestration runs for REST handlers.
type RunService interface {
	// Run executes a run to completion and returns the result.
	Run(ctx context.Context, in RunInput) (*RunOutput, error)
	// StreamRun executes a run, forwarding progress events to the channel.
	// Implementations must close the channel when the run ends.
	StreamRun(ctx context.Context, in RunInput, events chan<- SSEEvent)
}

// ToolService lists registered tools for REST handlers.
type ToolService interface {
	List(ctx context.Context) []ToolSummary
}

// ProviderService reports provider availability. Optional; when nil the
// health endpoint omits provider status.
type ProviderService interface {
	Status(ctx context.Context) []ProviderStatus
}

// HistoryService retrieves persisted runs. Optional; when nil the run
// lookup routes are not registered.
type HistoryService interface {
	// GetRun returns the stored run with the given ID.
	GetRun(ctx context.Context, id string) (*StoredRun, error)
	// ListRuns returns stored runs ordered newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]RunSummary, error)
}
