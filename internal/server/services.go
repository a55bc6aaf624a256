// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/agent"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/store"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/health"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// Services holds dependencies injected into route handlers. Each field is
// an interface so tests can substitute fakes.
type Services struct {
	messages  MessageProcessor
	tools     ToolInspector
	providers ProviderService // optional; nil = provider health returns 503
	runs      RunService      // optional; nil = run listing returns 503
}

// NewServices returns an error if a required service is nil.
func NewServices(messages MessageProcessor, tools ToolInspector) (*Services, error) {
	if messages == nil {
		return nil, aoserr.New(aoserr.CodeServerConfigInvalid, "message processor is required")
	}
	if tools == nil {
		return nil, aoserr.New(aoserr.CodeServerConfigInvalid, "tool inspector is required")
	}
	return &Services{messages: messages, tools: tools}, nil
}

func (s *Services) SetProviders(p ProviderService) { s.providers = p }

func (s *Services) SetRuns(r RunService) { s.runs = r }

func (s *Services) Messages() MessageProcessor { return s.messages }

func (s *Services) Tools() ToolInspector { return s.tools }

func (s *Services) Providers() ProviderService { return s.providers }

func (s *Services) Runs() RunService { return s.runs }

// MessageProcessor runs one turn. agent.Loop satisfies it.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, req agent.ProcessRequest) (*agent.ProcessResponse, error)
}

// ToolInspector connects tool servers, reports what they advertise and
// disconnects again.
type ToolInspector interface {
	Inspect(ctx context.Context, defs []types.ToolServerDefinition) (*ToolInspection, error)
}

// ProviderService reports backend health. provider.Registry satisfies it.
type ProviderService interface {
	Health() map[string]health.Metrics
}

// RunService lists audited runs. store.RunStore satisfies it.
type RunService interface {
	ListRuns(ctx context.Context, sessionID string, limit int) ([]*store.RunRecord, error)
}

// ToolInspection is the namespaced catalog plus any servers that failed.
type ToolInspection struct {
	Tools    []ToolSummary    `json:"tools" doc:"Namespaced tools, in server then advertisement order"`
	Failures []ConnectFailure `json:"failures" doc:"Servers that could not be connected"`
}

// ToolSummary is one catalog entry.
type ToolSummary struct {
	Name        string `json:"name" doc:"Namespaced tool name (server__tool)"`
	Description string `json:"description,omitempty" doc:"Tool description"`
	InputSchema any    `json:"input_schema,omitempty" doc:"JSON Schema of the tool input"`
}

type ConnectFailure struct {
	Server string `json:"server" doc:"Tool server name"`
	Error  string `json:"error" doc:"Why the connection failed"`
}

// RegistryInspector inspects through a fresh tool registry per call.
type RegistryInspector struct {
	NewRegistry agent.RegistryFactory
}

func (i RegistryInspector) Inspect(ctx context.Context, defs []types.ToolServerDefinition) (*ToolInspection, error) {
	reg := i.NewRegistry()
	defer func() { _ = reg.DisconnectAll() }()

	reg.ConnectAll(ctx, defs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &ToolInspection{Tools: []ToolSummary{}, Failures: []ConnectFailure{}}
	for _, t := range reg.Catalog() {
		ts := ToolSummary{Name: t.Name, Description: t.Description}
		if len(t.InputSchema) > 0 {
			ts.InputSchema = json.RawMessage(t.InputSchema)
		}
		out.Tools = append(out.Tools, ts)
	}
	for _, f := range reg.Failures() {
		cf := ConnectFailure{Server: f.Server}
		if f.Err != nil {
			cf.Error = f.Err.Error()
		}
		out.Failures = append(out.Failures, cf)
	}
	return out, nil
}

// ProviderHealthDetail is the REST representation of a provider's health.
type ProviderHealthDetail struct {
	Provider      string     `json:"provider" doc:"Provider name"`
	Available     bool       `json:"available" doc:"Whether the provider is outside its cooldown"`
	FailureCount  int64      `json:"failure_count" doc:"Consecutive failures"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty" doc:"Time of the last failure"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty" doc:"End of the current cooldown"`
	CoolingDown   bool       `json:"cooling_down" doc:"Whether the cooldown is still running"`
}

func newProviderHealthDetail(name string, m health.Metrics) ProviderHealthDetail {
	return ProviderHealthDetail{
		Provider:      name,
		Available:     m.Available,
		FailureCount:  m.FailureCount,
		LastFailureAt: m.LastFailureAt,
		CooldownUntil: m.CooldownUntil,
		CoolingDown:   m.CoolingDown(time.Now()),
	}
}
