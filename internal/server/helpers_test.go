// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/agent"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/server"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/health"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// fakeProcessor replays records through the hooks, then returns reply or err.
type fakeProcessor struct {
	mu       sync.Mutex
	requests []agent.ProcessRequest

	records []types.ToolUseRecord
	reply   string
	err     error
	fn      func(ctx context.Context, req agent.ProcessRequest) (*agent.ProcessResponse, error)
}

func (f *fakeProcessor) ProcessMessage(ctx context.Context, req agent.ProcessRequest) (*agent.ProcessResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(ctx, req)
	}
	for _, rec := range f.records {
		if req.Hooks != nil && req.Hooks.OnToolExecution != nil {
			req.Hooks.OnToolExecution(rec)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &agent.ProcessResponse{
		Message: types.NewRuntimeMessage(types.RoleAssistant, f.reply),
		SessionUpdates: types.SessionUpdates{
			TurnCount: req.TurnCount + 1,
			Status:    types.SessionStatusActive,
		},
		ToolExecutions: f.records,
	}, nil
}

func (f *fakeProcessor) lastRequest() agent.ProcessRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeInspector struct {
	out *server.ToolInspection
	err error
}

func (f *fakeInspector) Inspect(context.Context, []types.ToolServerDefinition) (*server.ToolInspection, error) {
	return f.out, f.err
}

type fakeProviders map[string]health.Metrics

func (f fakeProviders) Health() map[string]health.Metrics { return f }

type testOption func(*server.Config, *server.Services)

func withRateLimit(rps float64, burst int) testOption {
	return func(c *server.Config, _ *server.Services) {
		c.RateLimit = server.RateLimitConfig{RequestsPerSecond: rps, Burst: burst}
	}
}

func withMaxStreams(n int) testOption {
	return func(c *server.Config, _ *server.Services) { c.MaxConcurrentStreams = n }
}

func withServices(fn func(*server.Services)) testOption {
	return func(_ *server.Config, s *server.Services) { fn(s) }
}

func newTestServer(t *testing.T, proc server.MessageProcessor, opts ...testOption) *server.Server {
	t.Helper()
	if proc == nil {
		proc = &fakeProcessor{reply: "hi"}
	}
	svc, err := server.NewServices(proc, &fakeInspector{out: &server.ToolInspection{}})
	require.NoError(t, err)

	cfg := server.Config{
		ListenAddr: "127.0.0.1:0",
		Services:   svc,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(&cfg, svc)
	}

	srv, err := server.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func doJSON(t *testing.T, srv *server.Server, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
