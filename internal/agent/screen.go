// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/security/scanner"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// injectionDefenseEnabled reports whether cfg asks for prompt-injection
// screening. Any level other than empty, "none" or "off" enables it.
func injectionDefenseEnabled(cfg *types.GuardrailConfig) bool {
	if cfg == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(cfg.PromptInjectionDefense)) {
	case "", "none", "off":
		return false
	default:
		return true
	}
}

// screenInput logs injection phrasing in the user message. The turn still
// runs; enforcement belongs to the agent's behavioral rules.
func (l *Loop) screenInput(ctx context.Context, logger *slog.Logger, msg string) {
	res, err := l.scanner.Scan(msg, scanner.StageInput)
	if err != nil || !res.Threat {
		return
	}
	logger.LogAttrs(ctx, slog.LevelWarn, "possible prompt injection in user message",
		slog.Any("rules", res.Rules()),
	)
}

// screenToolOutput logs instructions smuggled into tool results.
func (l *Loop) screenToolOutput(ctx context.Context, logger *slog.Logger, rec types.ToolUseRecord) {
	res, err := l.scanner.Scan(rec.Output, scanner.StageTool)
	if err != nil || !res.Threat {
		return
	}
	logger.LogAttrs(ctx, slog.LevelWarn, "possible prompt injection in tool output",
		slog.String("server", rec.ServerName),
		slog.String("tool", rec.ToolName),
		slog.String("tool_call_id", rec.ToolCallID),
		slog.Any("rules", res.Rules()),
	)
}
