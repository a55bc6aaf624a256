// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/health"
)

// Backend is a hosted language model reached through a request/response
// call. Implementations must be safe for concurrent use.
type Backend interface {
	Name() string
	Available(ctx context.Context) bool
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Close() error
}

// HealthReporter is implemented by backends that track their own health.
type HealthReporter interface {
	HealthMetrics() health.Metrics
}

// ChatRequest is one exchange with a backend. Tools may be empty, in which
// case the backend must answer in text.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	MaxTokens    int
}

// Role defines the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the provider-neutral conversation.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// BlockType discriminates ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is a single piece of a message. ToolUseID is the call id on
// a tool_use block and the id being answered on a tool_result block.
type ContentBlock struct {
	Type      BlockType
	Text      string
	ToolUseID string
	ToolName  string
	Input     json.RawMessage
	IsError   bool
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUseID: id, ToolName: name, Input: input}
}

func ToolResultBlock(id, output string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: id, Text: output, IsError: isError}
}

// UserText builds a plain user turn.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantText builds a plain assistant turn.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// ToolDefinition is a tool offered to the model. InputSchema is a JSON
// Schema object passed through without interpretation.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// StopReason explains why the backend stopped generating.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonToolUse   StopReason = "tool_use"
	StopReasonMaxTokens StopReason = "max_tokens"
	StopReasonOther     StopReason = "other"
)

// ChatResponse is a complete, non-streamed backend reply.
type ChatResponse struct {
	Model      string
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Text joins the text blocks of the reply.
func (r *ChatResponse) Text() string {
	if r == nil {
		return ""
	}
	var parts []string
	for _, b := range r.Content {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolUses returns the tool_use blocks in the order the model emitted them.
func (r *ChatResponse) ToolUses() []ContentBlock {
	if r == nil {
		return nil
	}
	var uses []ContentBlock
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// WantsTools reports whether the model stopped to request tool calls.
func (r *ChatResponse) WantsTools() bool {
	return r != nil && r.StopReason == StopReasonToolUse
}

// Message converts the reply into an assistant turn that preserves every
// block in order, as backends require when tool results follow.
func (r *ChatResponse) Message() Message {
	content := make([]ContentBlock, len(r.Content))
	copy(content, r.Content)
	return Message{Role: RoleAssistant, Content: content}
}
