// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package store

import (
	"time"

	"github.com/google/uuid"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// RunRecord is one processed turn. Blocked turns are recorded with
// Allowed=false and no tool executions.
type RunRecord struct {
	ID             string                `json:"id"`
	SessionID      string                `json:"session_id"`
	Model          string                `json:"model,omitempty"`
	Allowed        bool                  `json:"allowed"`
	BlockReason    string                `json:"block_reason,omitempty"`
	UserMessage    string                `json:"user_message"`
	ResponseText   string                `json:"response_text"`
	Rounds         int                   `json:"rounds"`
	TurnCount      int                   `json:"turn_count"`
	Status         types.SessionStatus   `json:"status"`
	Error          string                `json:"error,omitempty"`
	DurationMs     int64                 `json:"duration_ms"`
	ToolExecutions []types.ToolUseRecord `json:"tool_executions,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// Prepare fills the id and timestamp when unset and checks required
// fields.
func (r *RunRecord) Prepare() error {
	if r == nil {
		return aoserr.New(aoserr.CodeStoreInvalidInput, "run record is nil")
	}
	if r.SessionID == "" {
		return aoserr.New(aoserr.CodeStoreInvalidInput, "run record requires a session id")
	}
	if r.Status != "" && !r.Status.Valid() {
		return aoserr.Errorf(aoserr.CodeStoreInvalidInput, "invalid session status %q", r.Status)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}
