// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/guardrail"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/security/scanner"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/store"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// AgentConfig is the per-agent part of a request.
type AgentConfig struct {
	Model      string                 `json:"model,omitempty"`
	MaxTokens  int                    `json:"max_tokens,omitempty"`
	Guardrails *types.GuardrailConfig `json:"guardrails,omitempty"`
}

// ProcessRequest is the input to ProcessMessage. The caller owns the
// session state; the loop only computes the next one.
type ProcessRequest struct {
	SessionID      string                       `json:"session_id,omitempty"`
	SystemPrompt   string                       `json:"system_prompt"`
	AgentConfig    AgentConfig                  `json:"agent_config"`
	SessionStatus  types.SessionStatus          `json:"session_status"`
	TurnCount      int                          `json:"turn_count"`
	FailedAttempts int                          `json:"failed_attempts"`
	History        []types.RuntimeMessage       `json:"history,omitempty"`
	UserMessage    string                       `json:"user_message"`
	ToolServers    []types.ToolServerDefinition `json:"tool_servers,omitempty"`
	Hooks          *Hooks                       `json:"-"`
}

// ProcessResponse is the assistant reply plus the next session state.
type ProcessResponse struct {
	Message         types.RuntimeMessage  `json:"message"`
	SessionUpdates  types.SessionUpdates  `json:"session_updates"`
	GuardrailNotice string                `json:"guardrail_notice,omitempty"`
	ToolExecutions  []types.ToolUseRecord `json:"tool_executions,omitempty"`
}

// Hooks observe a single ProcessMessage call. All fields are optional.
type Hooks struct {
	OnCheck         func(guardrail.Decision)
	OnToolExecution func(types.ToolUseRecord)
	OnRespond       func(*ProcessResponse)
}

// BackendSource resolves a "provider/model" reference to a backend.
// provider.Registry satisfies it.
type BackendSource interface {
	Backend(modelRef string) provider.Backend
}

// LoopConfig holds dependencies for the Loop.
type LoopConfig struct {
	Backends         BackendSource
	NewRegistry      RegistryFactory
	RunStore         store.RunStore
	MaxParallelTools int
	DefaultMaxTokens int
	Logger           *slog.Logger

	// Scanner screens messages when an agent enables prompt-injection
	// defense and redacts credentials from audit records. Defaults to
	// scanner.Default().
	Scanner *scanner.Scanner
}

// Loop is the exposed per-turn pipeline:
// VALIDATE → CHECK → RUN → ADVANCE → AUDIT.
type Loop struct {
	backends    BackendSource
	newRegistry RegistryFactory
	runStore    store.RunStore
	parallel    int
	maxTokens   int
	logger      *slog.Logger
	scanner     *scanner.Scanner

	auditFailures atomic.Int64
}

// NewLoop creates a Loop with the given dependencies.
func NewLoop(cfg LoopConfig) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxTokens := cfg.DefaultMaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	sc := cfg.Scanner
	if sc == nil {
		sc = scanner.Default()
	}

	return &Loop{
		scanner:     sc,
		backends:    cfg.Backends,
		newRegistry: cfg.NewRegistry,
		runStore:    cfg.RunStore,
		parallel:    cfg.MaxParallelTools,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

// ProcessMessage handles one user turn. A guardrail block is not an error:
// it produces an in-character reply and the adjusted session state.
func (l *Loop) ProcessMessage(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	start := time.Now()

	if err := l.validate(&req); err != nil {
		return nil, err
	}

	prev := types.SessionUpdates{
		TurnCount:      req.TurnCount,
		FailedAttempts: req.FailedAttempts,
		Status:         req.SessionStatus,
	}
	logger := l.logger.With("session_id", req.SessionID)

	decision := guardrail.Check(req.AgentConfig.Guardrails, req.TurnCount, req.SessionStatus)
	if req.Hooks != nil && req.Hooks.OnCheck != nil {
		req.Hooks.OnCheck(decision)
	}

	if !decision.Allowed {
		logger.Info("turn blocked by guardrail", "reason", decision.Reason, "action", string(decision.Action))
		resp := &ProcessResponse{
			Message:         types.NewRuntimeMessage(types.RoleAssistant, guardrail.BlockedReply(decision)),
			SessionUpdates:  guardrail.Apply(decision, prev),
			GuardrailNotice: decision.Reason,
		}
		l.respond(req.Hooks, resp)
		l.audit(ctx, &store.RunRecord{
			SessionID:   req.SessionID,
			Model:       req.AgentConfig.Model,
			BlockReason: decision.Reason,
			UserMessage: req.UserMessage,
			TurnCount:   resp.SessionUpdates.TurnCount,
			Status:      resp.SessionUpdates.Status,
			DurationMs:  time.Since(start).Milliseconds(),
		}, resp)
		return resp, nil
	}

	screen := injectionDefenseEnabled(req.AgentConfig.Guardrails)
	if screen {
		l.screenInput(ctx, logger, req.UserMessage)
	}

	orch := NewOrchestrator(OrchestratorConfig{
		Backend:          l.backends.Backend(req.AgentConfig.Model),
		NewRegistry:      l.newRegistry,
		MaxParallelTools: l.parallel,
		Logger:           logger,
	})

	in := RunInput{
		SystemPrompt: req.SystemPrompt,
		History:      req.History,
		UserMessage:  req.UserMessage,
		ToolServers:  req.ToolServers,
		Model:        req.AgentConfig.Model,
		MaxTokens:    req.AgentConfig.MaxTokens,
	}
	if in.MaxTokens <= 0 {
		in.MaxTokens = l.maxTokens
	}
	var onTool func(types.ToolUseRecord)
	if req.Hooks != nil {
		onTool = req.Hooks.OnToolExecution
	}
	if screen {
		hook := onTool
		onTool = func(rec types.ToolUseRecord) {
			l.screenToolOutput(ctx, logger, rec)
			if hook != nil {
				hook(rec)
			}
		}
	}
	in.OnToolExecution = onTool

	out, err := orch.Run(ctx, in)
	if err != nil {
		logger.Error("turn failed", "error", err)
		l.audit(ctx, &store.RunRecord{
			SessionID:   req.SessionID,
			Model:       req.AgentConfig.Model,
			Allowed:     true,
			UserMessage: req.UserMessage,
			TurnCount:   prev.TurnCount,
			Status:      prev.Status,
			Error:       err.Error(),
			DurationMs:  time.Since(start).Milliseconds(),
		}, nil)
		return nil, err
	}

	updates, notice := guardrail.Advance(req.AgentConfig.Guardrails, prev)
	resp := &ProcessResponse{
		Message:         types.NewRuntimeMessage(types.RoleAssistant, out.ResponseText),
		SessionUpdates:  updates,
		GuardrailNotice: notice,
		ToolExecutions:  out.ToolExecutions,
	}
	l.respond(req.Hooks, resp)

	l.audit(ctx, &store.RunRecord{
		SessionID:      req.SessionID,
		Model:          req.AgentConfig.Model,
		Allowed:        true,
		UserMessage:    req.UserMessage,
		ResponseText:   out.ResponseText,
		Rounds:         out.Rounds,
		TurnCount:      updates.TurnCount,
		Status:         updates.Status,
		DurationMs:     time.Since(start).Milliseconds(),
		ToolExecutions: out.ToolExecutions,
	}, resp)

	logger.Info("turn processed",
		"rounds", out.Rounds,
		"tool_executions", len(out.ToolExecutions),
		"turn_count", updates.TurnCount,
		"status", string(updates.Status),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (l *Loop) validate(req *ProcessRequest) error {
	var problems []string
	if l.backends == nil {
		problems = append(problems, "no model backend configured")
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		problems = append(problems, "user message is empty")
	}
	if req.TurnCount < 0 || req.FailedAttempts < 0 {
		problems = append(problems, "turn count and failed attempts must not be negative")
	}
	if req.SessionStatus == "" {
		req.SessionStatus = types.SessionStatusActive
	}
	if !req.SessionStatus.Valid() {
		problems = append(problems, "unknown session status "+string(req.SessionStatus))
	}
	for _, m := range req.History {
		if !m.Role.Valid() {
			problems = append(problems, "history message "+m.ID+" has unknown role "+string(m.Role))
		}
	}

	if len(problems) > 0 {
		return aoserr.New(aoserr.CodeAgentLoopInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func (l *Loop) respond(hooks *Hooks, resp *ProcessResponse) {
	if hooks != nil && hooks.OnRespond != nil {
		hooks.OnRespond(resp)
	}
}

func (l *Loop) audit(ctx context.Context, run *store.RunRecord, resp *ProcessResponse) {
	if l.runStore == nil || run.SessionID == "" {
		return
	}
	if resp != nil {
		run.ResponseText = resp.Message.Content
	}
	redactRun(l.scanner, run)

	// Best-effort audit; the turn has already succeeded.
	if err := l.runStore.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		n := l.auditFailures.Add(1)
		logAuditFailure(ctx, l.logger, n, "recording run failed",
			slog.String("session_id", run.SessionID),
			slog.Any("error", err),
		)
		return
	}
	l.auditFailures.Store(0)
}
