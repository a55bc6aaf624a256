// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider/anthropic"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

var _ provider.Backend = (*anthropic.Provider)(nil)

func TestAnthropicProvider_MissingAPIKey(t *testing.T) {
	_, err := anthropic.New(anthropic.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, aoserr.HasCode(err, aoserr.CodeProviderRequestInvalid))
}

func TestAnthropicProvider_ChatToolUse(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [
				{"type": "text", "text": "Reading both files."},
				{"type": "tool_use", "id": "toolu_a", "name": "files__read", "input": {"path": "/file_a.txt"}},
				{"type": "tool_use", "id": "toolu_b", "name": "files__read", "input": {"path": "/file_b.txt"}}
			],
			"stop_reason": "tool_use",
			"stop_sequence": null,
			"usage": {"input_tokens": 120, "output_tokens": 40}
		}`))
	}))
	defer srv.Close()

	p, err := anthropic.New(anthropic.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:        "claude-sonnet-4-5",
		SystemPrompt: "You are a file assistant.",
		Messages: []provider.Message{
			provider.UserText("compare the files"),
			{Role: provider.RoleAssistant, Content: []provider.ContentBlock{
				provider.ToolUseBlock("toolu_0", "files__list", json.RawMessage(`{"dir":"/"}`)),
			}},
			{Role: provider.RoleUser, Content: []provider.ContentBlock{
				provider.ToolResultBlock("toolu_0", "file_a.txt\nfile_b.txt", false),
			}},
		},
		Tools: []provider.ToolDefinition{{
			Name:        "files__read",
			Description: "Read a file",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, provider.StopReasonToolUse, resp.StopReason)
	assert.Equal(t, "Reading both files.", resp.Text())
	uses := resp.ToolUses()
	require.Len(t, uses, 2)
	assert.Equal(t, "toolu_a", uses[0].ToolUseID)
	assert.Equal(t, "files__read", uses[0].ToolName)
	assert.JSONEq(t, `{"path":"/file_a.txt"}`, string(uses[0].Input))
	assert.Equal(t, "toolu_b", uses[1].ToolUseID)
	assert.Equal(t, 120, resp.Usage.InputTokens)

	assert.Equal(t, "claude-sonnet-4-5", captured["model"])
	assert.EqualValues(t, anthropic.DefaultMaxTokens, captured["max_tokens"])

	tools, ok := captured["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	assert.Equal(t, "files__read", tools[0].(map[string]any)["name"])

	msgs, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 3)
	toolUse := msgs[1].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_use", toolUse["type"])
	assert.Equal(t, "toolu_0", toolUse["id"])
	toolResult := msgs[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", toolResult["type"])
	assert.Equal(t, "toolu_0", toolResult["tool_use_id"])

	assert.True(t, p.Available(context.Background()))
}

func TestAnthropicProvider_ChatErrorMarksUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad request"}}`))
	}))
	defer srv.Close()

	p, err := anthropic.New(anthropic.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Chat(context.Background(), provider.ChatRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []provider.Message{provider.UserText("hi")},
	})
	require.Error(t, err)
	assert.True(t, aoserr.IsUpstreamFailure(err))
	assert.False(t, p.Available(context.Background()))
	assert.Equal(t, int64(1), p.HealthMetrics().FailureCount)
}
