// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package agent

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/security/scanner"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/store"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// AuditLogEscalationThreshold is the number of consecutive audit failures
// after which they are logged at Error instead of Warn.
const AuditLogEscalationThreshold = 3

// logAuditFailure logs an audit failure at Warn, escalating to Error once
// consecutive reaches AuditLogEscalationThreshold.
func logAuditFailure(ctx context.Context, log *slog.Logger, consecutive int64, msg string, attrs ...slog.Attr) {
	level := slog.LevelWarn
	if consecutive >= AuditLogEscalationThreshold {
		level = slog.LevelError
	}
	log.LogAttrs(ctx, level, msg, append(attrs, slog.Int64("consecutive_failures", consecutive))...)
}

// redactRun strips credentials from the text fields of run before it is
// persisted. Tool inputs that no longer parse as JSON after redaction are
// stored as a JSON string.
func redactRun(s *scanner.Scanner, run *store.RunRecord) {
	run.UserMessage = s.Redact(run.UserMessage, scanner.StageAudit)
	run.ResponseText = s.Redact(run.ResponseText, scanner.StageAudit)
	run.Error = s.Redact(run.Error, scanner.StageAudit)

	if len(run.ToolExecutions) == 0 {
		return
	}
	execs := make([]types.ToolUseRecord, len(run.ToolExecutions))
	for i, rec := range run.ToolExecutions {
		rec.Output = s.Redact(rec.Output, scanner.StageAudit)
		if len(rec.Input) > 0 {
			in := s.Redact(string(rec.Input), scanner.StageAudit)
			if in != string(rec.Input) {
				rec.Input = redactedJSON(in)
			}
		}
		execs[i] = rec
	}
	run.ToolExecutions = execs
}

func redactedJSON(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}
