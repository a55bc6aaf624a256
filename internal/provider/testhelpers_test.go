// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package provider_test

import (
	"context"
	"sync"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider"
)

// mockBackend is a scripted provider.Backend.
type mockBackend struct {
	name      string
	available bool
	err       error
	reply     string

	mu     sync.Mutex
	models []string
}

func newMockBackend(name string) *mockBackend {
	return &mockBackend{name: name, available: true, reply: "hello from " + name}
}

func (m *mockBackend) Name() string { return m.name }
func (m *mockBackend) Available(_ context.Context) bool { return m.available }
func (m *mockBackend) Close() error { return nil }

func (m *mockBackend) Chat(_ context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	m.mu.Lock()
	m.models = append(m.models, req.Model)
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	return &provider.ChatResponse{
		Model:      req.Model,
		Content:    []provider.ContentBlock{provider.TextBlock(m.reply)},
		StopReason: provider.StopReasonEndTurn,
	}, nil
}

func (m *mockBackend) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.models...)
}
