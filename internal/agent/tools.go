// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package agent

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/toolserver"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// executeRound runs every tool call of one round, at most o.parallel at a
// time. Records come back in request order.
func (o *Orchestrator) executeRound(ctx context.Context, registry ToolRegistry, uses []provider.ContentBlock, round int) []types.ToolUseRecord {
	records := make([]types.ToolUseRecord, len(uses))

	var g errgroup.Group
	g.SetLimit(o.parallel)
	for i, use := range uses {
		server, _ := toolserver.ParseName(use.ToolName)
		call := types.ToolCall{
			ID:           use.ToolUseID,
			PrefixedName: use.ToolName,
			Input:        use.Input,
			ServerName:   server,
		}
		g.Go(func() error {
			records[i] = o.executeOne(ctx, registry, call)
			return nil
		})
	}
	_ = g.Wait()

	for _, rec := range records {
		o.logger.Debug("tool call finished",
			"round", round,
			"server", rec.ServerName,
			"tool", rec.ToolName,
			"tool_call_id", rec.ToolCallID,
			"duration_ms", rec.DurationMs,
			"is_error", rec.IsError,
		)
	}
	return records
}

func (o *Orchestrator) executeOne(ctx context.Context, registry ToolRegistry, call types.ToolCall) (rec types.ToolUseRecord) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("tool execution panicked", "tool_call_id", call.ID, "panic", r)
			server, tool := toolserver.ParseName(call.PrefixedName)
			rec = types.ToolUseRecord{
				ToolCallID: call.ID,
				ToolName:   tool,
				ServerName: server,
				Input:      call.Input,
				Output:     fmt.Sprintf("Tool %q failed unexpectedly: %v", call.PrefixedName, r),
				IsError:    true,
			}
		}
	}()
	return registry.Execute(ctx, call)
}
