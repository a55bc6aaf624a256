// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

// Package agent runs one conversational turn: guardrail pre-check, tool
// server lifecycle and the bounded tool-use loop against a model backend.
package agent

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/toolserver"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

const (
	// MaxToolRounds bounds the tool-use exchanges in one run. A final
	// exchange without tools follows when the bound is reached.
	MaxToolRounds = 10

	// HistoryWindow is the number of trailing history turns sent to the
	// backend.
	HistoryWindow = 40

	DefaultMaxParallelTools = 4
	DefaultMaxTokens        = 4096
)

const instrumentationName = "github.com/autonomous-tech/autonomous-agent-os-sub000/internal/agent"

// ToolRegistry is the part of toolserver.Registry a run needs.
type ToolRegistry interface {
	ConnectAll(ctx context.Context, defs []types.ToolServerDefinition)
	Catalog() []provider.ToolDefinition
	Execute(ctx context.Context, call types.ToolCall) types.ToolUseRecord
	Failures() []toolserver.ConnectFailure
	DisconnectAll() error
}

// RegistryFactory creates a fresh registry for one run.
type RegistryFactory func() ToolRegistry

// RunInput is everything one run needs.
type RunInput struct {
	SystemPrompt string
	History      []types.RuntimeMessage
	UserMessage  string
	ToolServers  []types.ToolServerDefinition
	Model        string
	MaxTokens    int

	// OnToolExecution, when set, receives each record in request order as
	// soon as its round completes.
	OnToolExecution func(types.ToolUseRecord)
}

// RunOutput is the result of one run. ToolExecutions is nil when no tool
// ran.
type RunOutput struct {
	ResponseText    string
	ToolExecutions  []types.ToolUseRecord
	Rounds          int
	ConnectFailures []toolserver.ConnectFailure
}

// OrchestratorConfig holds dependencies for the Orchestrator.
type OrchestratorConfig struct {
	Backend          provider.Backend
	NewRegistry      RegistryFactory
	MaxParallelTools int
	Logger           *slog.Logger
}

// Orchestrator drives the tool-use loop. It holds no per-run state and is
// safe for concurrent use.
type Orchestrator struct {
	backend     provider.Backend
	newRegistry RegistryFactory
	parallel    int
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewOrchestrator creates an Orchestrator. Without a RegistryFactory each
// run gets a default toolserver.Registry.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parallel := cfg.MaxParallelTools
	if parallel <= 0 {
		parallel = DefaultMaxParallelTools
	}
	newRegistry := cfg.NewRegistry
	if newRegistry == nil {
		newRegistry = func() ToolRegistry { return toolserver.NewRegistry(toolserver.WithLogger(logger)) }
	}

	return &Orchestrator{
		backend:     cfg.Backend,
		newRegistry: newRegistry,
		parallel:    parallel,
		logger:      logger,
		tracer:      otel.Tracer(instrumentationName),
	}
}

// Run executes one turn. Tool failures are reported in the output; only a
// backend failure is returned as an error.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (*RunOutput, error) {
	if o.backend == nil {
		return nil, aoserr.New(aoserr.CodeAgentLoopInvalidInput, "orchestrator has no backend")
	}

	ctx, span := o.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.Int("tool_servers", len(in.ToolServers)),
	))
	defer span.End()

	out, err := o.run(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("rounds", out.Rounds),
		attribute.Int("tool_executions", len(out.ToolExecutions)),
	)
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, in RunInput) (*RunOutput, error) {
	messages := buildMessages(in.History, in.UserMessage)
	req := provider.ChatRequest{
		Model:        in.Model,
		SystemPrompt: in.SystemPrompt,
		MaxTokens:    in.MaxTokens,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}

	if len(in.ToolServers) == 0 {
		req.Messages = messages
		resp, err := o.chat(ctx, req, 0)
		if err != nil {
			return nil, err
		}
		return &RunOutput{ResponseText: resp.Text()}, nil
	}

	registry := o.newRegistry()
	defer func() {
		if err := registry.DisconnectAll(); err != nil {
			o.logger.Warn("disconnecting tool servers", "error", err)
		}
	}()

	registry.ConnectAll(ctx, in.ToolServers)
	out := &RunOutput{ConnectFailures: registry.Failures()}
	req.Tools = registry.Catalog()

	for round := 1; round <= MaxToolRounds; round++ {
		req.Messages = messages
		resp, err := o.chat(ctx, req, round)
		if err != nil {
			return nil, err
		}
		uses := resp.ToolUses()
		// A tool_use stop with nothing to run would leave an empty tool
		// result turn, so it ends the run like any other stop.
		if !resp.WantsTools() || len(uses) == 0 {
			out.ResponseText = resp.Text()
			return out, nil
		}

		messages = append(messages, resp.Message())
		records := o.executeRound(ctx, registry, uses, round)
		out.ToolExecutions = append(out.ToolExecutions, records...)
		out.Rounds = round
		if in.OnToolExecution != nil {
			for _, rec := range records {
				in.OnToolExecution(rec)
			}
		}

		results := make([]provider.ContentBlock, len(records))
		for i, rec := range records {
			results[i] = provider.ToolResultBlock(rec.ToolCallID, rec.Output, rec.IsError)
		}
		messages = append(messages, provider.Message{Role: provider.RoleUser, Content: results})
	}

	o.logger.Info("tool round limit reached, requesting final answer", "round", MaxToolRounds)
	req.Messages = messages
	req.Tools = nil
	resp, err := o.chat(ctx, req, MaxToolRounds+1)
	if err != nil {
		return nil, err
	}
	out.ResponseText = resp.Text()
	return out, nil
}

func (o *Orchestrator) chat(ctx context.Context, req provider.ChatRequest, round int) (*provider.ChatResponse, error) {
	ctx, span := o.tracer.Start(ctx, "agent.backend.chat",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("backend", o.backend.Name()),
			attribute.Int("round", round),
			attribute.Int("tools", len(req.Tools)),
		))
	defer span.End()

	resp, err := o.backend.Chat(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, aoserr.Wrap(err, aoserr.CodeAgentBackendFailure, "model backend call failed",
			aoserr.FieldProvider(o.backend.Name()), aoserr.Field("round", round))
	}
	if resp == nil {
		return nil, aoserr.New(aoserr.CodeAgentBackendMalformed, "model backend returned no response",
			aoserr.FieldProvider(o.backend.Name()), aoserr.Field("round", round))
	}
	return resp, nil
}

// buildMessages keeps the trailing HistoryWindow turns and appends the
// new user message.
func buildMessages(history []types.RuntimeMessage, userMessage string) []provider.Message {
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}

	messages := make([]provider.Message, 0, len(history)+1)
	for _, m := range history {
		role := provider.RoleUser
		if m.Role == types.RoleAssistant {
			role = provider.RoleAssistant
		}
		messages = append(messages, provider.Message{Role: role, Content: []provider.ContentBlock{provider.TextBlock(m.Content)}})
	}
	return append(messages, provider.UserText(userMessage))
}
