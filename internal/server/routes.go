// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/agent"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/store"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "process-message",
		Method:      http.MethodPost,
		Path:        "/api/v1/runtime/messages",
		Summary:     "Process one user turn",
		Description: "Runs the guardrail pre-check, connects the agent's tool servers and drives the tool-use loop. A guardrail block is a normal 200 response.",
		Tags:        []string{"runtime"},
	}, s.handleProcessMessage)

	huma.Register(s.api, huma.Operation{
		OperationID: "inspect-tool-servers",
		Method:      http.MethodPost,
		Path:        "/api/v1/tool-servers/inspect",
		Summary:     "Connect tool servers and list their tools",
		Tags:        []string{"tool-servers"},
	}, s.handleInspectToolServers)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-provider-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/providers/health",
		Summary:     "Health of every model provider",
		Tags:        []string{"providers"},
	}, s.handleListProviderHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-provider-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/providers/{name}/health",
		Summary:     "Health of one model provider",
		Tags:        []string{"providers"},
	}, s.handleGetProviderHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/api/v1/runs",
		Summary:     "Recent audited turns of a session",
		Tags:        []string{"runs"},
	}, s.handleListRuns)

	s.registerSSERoute()
}

// --- Request/Response types for huma ---

// MessageRequest is the wire form of agent.ProcessRequest.
type MessageRequest struct {
	SessionID      string                       `json:"session_id,omitempty" doc:"Session identifier; turns of one session are processed in order and audited under it"`
	SystemPrompt   string                       `json:"system_prompt,omitempty" doc:"Agent system prompt"`
	AgentConfig    agent.AgentConfig            `json:"agent_config,omitempty" doc:"Model, token limit and guardrails"`
	SessionStatus  types.SessionStatus          `json:"session_status,omitempty" enum:"active,ended,escalated" doc:"Current status; defaults to active"`
	TurnCount      int                          `json:"turn_count,omitempty" minimum:"0" doc:"Turns taken so far"`
	FailedAttempts int                          `json:"failed_attempts,omitempty" minimum:"0" doc:"Failed attempts so far"`
	History        []HistoryMessage             `json:"history,omitempty" doc:"Prior turns, oldest first"`
	UserMessage    string                       `json:"user_message" minLength:"1" doc:"The new user message"`
	ToolServers    []types.ToolServerDefinition `json:"tool_servers,omitempty" doc:"MCP tool servers available for this turn"`
}

// HistoryMessage is one prior turn.
type HistoryMessage struct {
	ID        string     `json:"id,omitempty"`
	Role      types.Role `json:"role" enum:"user,assistant"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp,omitempty"`
}

// ProcessRequest converts the wire form.
func (m MessageRequest) ProcessRequest() agent.ProcessRequest {
	history := make([]types.RuntimeMessage, 0, len(m.History))
	for _, h := range m.History {
		history = append(history, types.RuntimeMessage{
			ID:        h.ID,
			Role:      h.Role,
			Content:   h.Content,
			Timestamp: h.Timestamp,
		})
	}
	return agent.ProcessRequest{
		SessionID:      m.SessionID,
		SystemPrompt:   m.SystemPrompt,
		AgentConfig:    m.AgentConfig,
		SessionStatus:  m.SessionStatus,
		TurnCount:      m.TurnCount,
		FailedAttempts: m.FailedAttempts,
		History:        history,
		UserMessage:    m.UserMessage,
		ToolServers:    m.ToolServers,
	}
}

type processMessageInput struct {
	Body MessageRequest
}

type processMessageOutput struct {
	Body *agent.ProcessResponse
}

type inspectToolServersInput struct {
	Body struct {
		ToolServers []types.ToolServerDefinition `json:"tool_servers" minItems:"1" doc:"Definitions to connect"`
	}
}

type inspectToolServersOutput struct {
	Body *ToolInspection
}

type listProviderHealthOutput struct {
	Body struct {
		Providers []ProviderHealthDetail `json:"providers"`
	}
}

type providerNameInput struct {
	Name string `path:"name"`
}

type getProviderHealthOutput struct {
	Body ProviderHealthDetail
}

type listRunsInput struct {
	SessionID string `query:"session_id" required:"true" minLength:"1" doc:"Session to list"`
	Limit     int    `query:"limit" minimum:"0" maximum:"500" doc:"Maximum records, newest first (default 50)"`
}

type listRunsOutput struct {
	Body struct {
		Runs []*store.RunRecord `json:"runs"`
	}
}

// --- Handlers ---

func (s *Server) handleProcessMessage(ctx context.Context, input *processMessageInput) (*processMessageOutput, error) {
	resp, err := s.process(ctx, input.Body.ProcessRequest())
	if err != nil {
		return nil, s.apiError(ctx, "processing message", err)
	}
	return &processMessageOutput{Body: resp}, nil
}

// process runs a turn, serialized per session when a session id is given.
func (s *Server) process(ctx context.Context, req agent.ProcessRequest) (*agent.ProcessResponse, error) {
	if req.SessionID == "" {
		return s.services.Messages().ProcessMessage(ctx, req)
	}

	var resp *agent.ProcessResponse
	err := s.lanes.Submit(ctx, req.SessionID, func(ctx context.Context) error {
		var err error
		resp, err = s.services.Messages().ProcessMessage(ctx, req)
		return err
	})
	return resp, err
}

func (s *Server) handleInspectToolServers(ctx context.Context, input *inspectToolServersInput) (*inspectToolServersOutput, error) {
	out, err := s.services.Tools().Inspect(ctx, input.Body.ToolServers)
	if err != nil {
		return nil, s.apiError(ctx, "inspecting tool servers", err)
	}
	return &inspectToolServersOutput{Body: out}, nil
}

func (s *Server) handleListProviderHealth(_ context.Context, _ *struct{}) (*listProviderHealthOutput, error) {
	ps := s.services.Providers()
	if ps == nil {
		return nil, huma.Error503ServiceUnavailable("provider health not configured")
	}

	metrics := ps.Health()
	out := &listProviderHealthOutput{}
	out.Body.Providers = make([]ProviderHealthDetail, 0, len(metrics))
	for name, m := range metrics {
		out.Body.Providers = append(out.Body.Providers, newProviderHealthDetail(name, m))
	}
	slices.SortFunc(out.Body.Providers, func(a, b ProviderHealthDetail) int {
		return strings.Compare(a.Provider, b.Provider)
	})
	return out, nil
}

func (s *Server) handleGetProviderHealth(_ context.Context, input *providerNameInput) (*getProviderHealthOutput, error) {
	ps := s.services.Providers()
	if ps == nil {
		return nil, huma.Error503ServiceUnavailable("provider health not configured")
	}

	m, ok := ps.Health()[input.Name]
	if !ok {
		return nil, huma.Error404NotFound("provider " + input.Name + " not found")
	}
	return &getProviderHealthOutput{Body: newProviderHealthDetail(input.Name, m)}, nil
}

func (s *Server) handleListRuns(ctx context.Context, input *listRunsInput) (*listRunsOutput, error) {
	rs := s.services.Runs()
	if rs == nil {
		return nil, huma.Error503ServiceUnavailable("audit log not enabled")
	}

	runs, err := rs.ListRuns(ctx, input.SessionID, input.Limit)
	if err != nil {
		return nil, s.apiError(ctx, "listing runs", err)
	}
	out := &listRunsOutput{}
	out.Body.Runs = runs
	if out.Body.Runs == nil {
		out.Body.Runs = []*store.RunRecord{}
	}
	return out, nil
}

// apiError maps err onto a status. Upstream and internal failures get a
// generic message; the detail is logged.
func (s *Server) apiError(ctx context.Context, op string, err error) error {
	status := s.logFailure(ctx, op, err)
	return huma.NewError(status, publicMessage(status, err))
}

func (s *Server) logFailure(ctx context.Context, op string, err error) int {
	status := statusOf(err)
	s.logger.LogAttrs(ctx, levelFor(status), op+" failed",
		slog.String("code", string(aoserr.CodeOf(err))),
		slog.Int("status", status),
		slog.Any("error", err),
	)
	return status
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 499
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case aoserr.HasCode(err, aoserr.CodeAgentLaneClosed):
		return http.StatusServiceUnavailable
	}
	return aoserr.HTTPStatus(err)
}

func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	return slog.LevelWarn
}

func publicMessage(status int, err error) string {
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusBadGateway:
		return "model backend request failed"
	case http.StatusGatewayTimeout:
		return "request timed out"
	case http.StatusServiceUnavailable:
		return "server is shutting down"
	case 499:
		return "client closed request"
	default:
		return "internal server error"
	}
}
