// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package types

import "encoding/json"

// ToolCall is one tool-use request issued by the model.
type ToolCall struct {
	ID           string          `json:"id"`
	PrefixedName string          `json:"prefixed_name"`
	Input        json.RawMessage `json:"input,omitempty"`
	ServerName   string          `json:"server_name,omitempty"`
}

// ToolUseRecord is the outcome of one completed tool call. Records are
// appended to a run's log and never modified afterwards.
type ToolUseRecord struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	ServerName string          `json:"server_name"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     string          `json:"output"`
	IsError    bool            `json:"is_error"`
	DurationMs int64           `json:"duration_ms"`
}
