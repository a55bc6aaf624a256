// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/agent"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/toolserver"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// scriptedBackend answers each Chat call with respond and records the
// requests it saw.
type scriptedBackend struct {
	respond func(call int, req provider.ChatRequest) (*provider.ChatResponse, error)

	mu       sync.Mutex
	requests []provider.ChatRequest
}

func (b *scriptedBackend) Name() string                   { return "scripted" }
func (b *scriptedBackend) Available(context.Context) bool { return true }
func (b *scriptedBackend) Close() error                   { return nil }

func (b *scriptedBackend) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	b.mu.Lock()
	// Messages are appended to between calls; keep a snapshot.
	req.Messages = append([]provider.Message(nil), req.Messages...)
	b.requests = append(b.requests, req)
	n := len(b.requests)
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.respond(n, req)
}

func (b *scriptedBackend) calls() []provider.ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]provider.ChatRequest(nil), b.requests...)
}

func (b *scriptedBackend) Backend(string) provider.Backend { return b }

func textReply(text string) *provider.ChatResponse {
	return &provider.ChatResponse{
		Content:    []provider.ContentBlock{provider.TextBlock(text)},
		StopReason: provider.StopReasonEndTurn,
	}
}

func toolReply(uses ...provider.ContentBlock) *provider.ChatResponse {
	return &provider.ChatResponse{Content: uses, StopReason: provider.StopReasonToolUse}
}

// toolRounds answers with one tool call per round for n rounds, then text.
func toolRounds(n int) func(int, provider.ChatRequest) (*provider.ChatResponse, error) {
	return func(call int, _ provider.ChatRequest) (*provider.ChatResponse, error) {
		if call <= n {
			id := "toolu_" + string(rune('a'+call-1))
			return toolReply(provider.ToolUseBlock(id, "fs__read_file", json.RawMessage(`{"path":"/x"}`))), nil
		}
		return textReply("done"), nil
	}
}

// fakeRegistry is an in-process ToolRegistry. Tools named "<server>__fail"
// produce error records.
type fakeRegistry struct {
	catalog  []provider.ToolDefinition
	failures []toolserver.ConnectFailure
	delay    time.Duration
	outputs  map[string]string // by call id, overrides the default output

	connected    atomic.Int32
	disconnected atomic.Int32
	inflight     atomic.Int32
	peak         atomic.Int32

	mu    sync.Mutex
	calls []types.ToolCall
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		catalog: []provider.ToolDefinition{
			{Name: "fs__read_file", Description: "Read a file", InputSchema: json.RawMessage(`{"type":"object"}`)},
		},
	}
}

func (r *fakeRegistry) ConnectAll(context.Context, []types.ToolServerDefinition) { r.connected.Add(1) }
func (r *fakeRegistry) Catalog() []provider.ToolDefinition                   { return r.catalog }
func (r *fakeRegistry) Failures() []toolserver.ConnectFailure                { return r.failures }

func (r *fakeRegistry) DisconnectAll() error {
	r.disconnected.Add(1)
	return nil
}

func (r *fakeRegistry) Execute(_ context.Context, call types.ToolCall) types.ToolUseRecord {
	n := r.inflight.Add(1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.inflight.Add(-1)

	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()

	server, tool := toolserver.ParseName(call.PrefixedName)
	rec := types.ToolUseRecord{
		ToolCallID: call.ID,
		ToolName:   tool,
		ServerName: server,
		Input:      call.Input,
		Output:     "contents of " + call.ID,
	}
	if out, ok := r.outputs[call.ID]; ok {
		rec.Output = out
	}
	if tool == "fail" {
		rec.IsError = true
		rec.Output = "failed"
	}
	return rec
}

// registryFactory counts how often a run asked for a registry.
type registryFactory struct {
	reg     *fakeRegistry
	created atomic.Int32
}

func (f *registryFactory) New() agent.ToolRegistry {
	f.created.Add(1)
	return f.reg
}

var errBackendDown = errors.New("backend down")

func stdioServer(name string) types.ToolServerDefinition {
	return types.ToolServerDefinition{Name: name, Transport: types.TransportStdio, Command: "tool-server"}
}
