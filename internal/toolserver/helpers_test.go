// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package toolserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/toolserver"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// fakeServer is an MCP server with a fixed tool set that counts calls.
type fakeServer struct {
	*mcp.Server
	calls atomic.Int32
}

func newFakeServer(name string) *fakeServer {
	s := &fakeServer{Server: mcp.NewServer(&mcp.Implementation{Name: name, Version: "test"}, nil)}

	s.AddTool(&mcp.Tool{
		Name:        "echo",
		Description: "Echo text back",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []any{"text"},
		},
	}, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.calls.Add(1)
		var in struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(req.Params.Arguments, &in); err != nil {
			return nil, err
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "echo:" + in.Text}}}, nil
	})

	s.AddTool(&mcp.Tool{
		Name:        "fail",
		Description: "Always reports an error",
		InputSchema: map[string]any{"type": "object"},
	}, func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.calls.Add(1)
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "disk full"}},
		}, nil
	})

	s.AddTool(&mcp.Tool{
		Name:        "slow",
		Description: "Blocks until cancelled",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.calls.Add(1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "late"}}}, nil
		}
	})

	return s
}

// inMemoryConnector serves definitions from fake servers keyed by name.
// Names without a fake server fail to connect.
func inMemoryConnector(servers map[string]*fakeServer) toolserver.Connector {
	return func(def types.ToolServerDefinition, _ *slog.Logger) (toolserver.Connection, error) {
		s, ok := servers[def.Name]
		if !ok {
			return nil, errors.New("no such server")
		}
		return toolserver.NewInMemoryConnection(def.Name, s.Server), nil
	}
}

func stdioDef(name string) types.ToolServerDefinition {
	return types.ToolServerDefinition{Name: name, Transport: types.TransportStdio, Command: "unused"}
}

type mapResolver map[string]string

func (m mapResolver) Resolve(value string) (string, error) {
	if v, ok := m[value]; ok {
		return v, nil
	}
	if len(value) > 10 && value[:10] == "keyring://" {
		return "", errors.New("secret not found")
	}
	return value, nil
}

// headerLog records the request headers a test server saw.
type headerLog struct {
	mu   sync.Mutex
	seen map[string]string
}

func (h *headerLog) get(key string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seen[key]
}

// serveRemote exposes srv over the sse or streamable http transport and
// returns its endpoint URL.
func serveRemote(t *testing.T, kind types.TransportKind, srv *fakeServer) (string, *headerLog) {
	t.Helper()
	getServer := func(*http.Request) *mcp.Server { return srv.Server }

	var handler http.Handler
	switch kind {
	case types.TransportSSE:
		handler = mcp.NewSSEHandler(getServer, nil)
	case types.TransportHTTP:
		handler = mcp.NewStreamableHTTPHandler(getServer, nil)
	default:
		t.Fatalf("no remote handler for %s", kind)
	}

	log := &headerLog{seen: map[string]string{}}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.mu.Lock()
		for k := range r.Header {
			log.seen[k] = r.Header.Get(k)
		}
		log.mu.Unlock()
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts.URL, log
}

// helperStdioDef runs the test binary as a stdio tool server.
func helperStdioDef(t *testing.T, name string) types.ToolServerDefinition {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	return types.ToolServerDefinition{
		Name:      name,
		Transport: types.TransportStdio,
		Command:   exe,
		Args:      []string{"-test.run=^$"},
		Env:       map[string]string{helperEnv: "1"},
	}
}
