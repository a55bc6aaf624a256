// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/config"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider"
)

const testConfigYAML = `
providers:
  anthropic:
    api_key: "sk-test-key"
models:
  default: "anthropic/claude-test"
storage:
  audit:
    enabled: false
logging:
  level: error
`

const testAgentYAML = `
name: helper
system_prompt: You are a helpful assistant.
guardrails:
  resource_limits:
    max_turns_per_session: 2
`

// stubBackend answers every Chat call with reply.
type stubBackend struct {
	reply string
	err   error

	mu    sync.Mutex
	calls int
}

func (b *stubBackend) Name() string                   { return "stub" }
func (b *stubBackend) Available(context.Context) bool { return true }
func (b *stubBackend) Close() error                   { return nil }

func (b *stubBackend) Chat(context.Context, provider.ChatRequest) (*provider.ChatResponse, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return &provider.ChatResponse{
		Content:    []provider.ContentBlock{provider.TextBlock(b.reply)},
		StopReason: provider.StopReasonEndTurn,
	}, nil
}

// withBackendFactory swaps the constructor for name for the test's duration.
func withBackendFactory(t *testing.T, name string, b provider.Backend) {
	t.Helper()
	orig, had := builtinBackendFactories[name]
	builtinBackendFactories[name] = func(context.Context, config.ProviderConfig) (provider.Backend, error) {
		return b, nil
	}
	t.Cleanup(func() {
		if had {
			builtinBackendFactories[name] = orig
		} else {
			delete(builtinBackendFactories, name)
		}
	})
}

// withMockKeyring routes the secret store to an in-memory keyring.
func withMockKeyring(t *testing.T) {
	t.Helper()
	keyring.MockInit()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimLeft(content, "\n")), 0o600))
	return path
}

// execute runs the root command with args and returns combined stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}
