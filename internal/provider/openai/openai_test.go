// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider/openai"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

func TestOpenAIProvider_NameAndMissingKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	require.Error(t, err)
	assert.True(t, aoserr.HasCode(err, aoserr.CodeProviderRequestInvalid))

	p, err := openai.New(openai.Config{Name: "openrouter", APIKey: "k", BaseURL: openai.OpenRouterBaseURL})
	require.NoError(t, err)
	assert.Equal(t, "openrouter", p.Name())
}

func TestOpenAIProvider_ChatToolCalls(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4.1",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [
						{"id": "call_1", "type": "function", "function": {"name": "weather__forecast", "arguments": "{\"city\":\"Oslo\"}"}}
					]
				}
			}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 12, "total_tokens": 42}
		}`))
	}))
	defer srv.Close()

	p, err := openai.New(openai.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:        "gpt-4.1",
		SystemPrompt: "Be brief.",
		MaxTokens:    256,
		Messages: []provider.Message{
			provider.UserText("weather?"),
			{Role: provider.RoleAssistant, Content: []provider.ContentBlock{
				provider.ToolUseBlock("call_0", "weather__now", json.RawMessage(`{"city":"Oslo"}`)),
			}},
			{Role: provider.RoleUser, Content: []provider.ContentBlock{
				provider.ToolResultBlock("call_0", "upstream timeout", true),
			}},
		},
		Tools: []provider.ToolDefinition{{Name: "weather__forecast", Description: "Forecast"}},
	})
	require.NoError(t, err)

	assert.Equal(t, provider.StopReasonToolUse, resp.StopReason)
	uses := resp.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "call_1", uses[0].ToolUseID)
	assert.JSONEq(t, `{"city":"Oslo"}`, string(uses[0].Input))
	assert.Equal(t, 30, resp.Usage.InputTokens)

	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assistant := msgs[2].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	require.Len(t, assistant["tool_calls"], 1)
	tool := msgs[3].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_0", tool["tool_call_id"])
	assert.Equal(t, "Error: upstream timeout", tool["content"])
	assert.EqualValues(t, 256, captured["max_completion_tokens"])
}
