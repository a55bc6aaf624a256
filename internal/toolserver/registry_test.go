// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package toolserver_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/toolserver"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

func connectedRegistry(t *testing.T, opts ...toolserver.Option) (*toolserver.Registry, map[string]*fakeServer) {
	t.Helper()
	servers := map[string]*fakeServer{
		"fs":  newFakeServer("fs"),
		"web": newFakeServer("web"),
	}
	opts = append([]toolserver.Option{toolserver.WithConnector(inMemoryConnector(servers))}, opts...)
	r := toolserver.NewRegistry(opts...)
	r.ConnectAll(context.Background(), []types.ToolServerDefinition{stdioDef("fs"), stdioDef("web")})
	t.Cleanup(func() { _ = r.DisconnectAll() })
	return r, servers
}

func TestRegistry_CatalogIsNamespacedAndOrdered(t *testing.T) {
	r, _ := connectedRegistry(t)

	require.Empty(t, r.Failures())
	assert.Equal(t, []string{"fs", "web"}, r.Servers())

	catalog := r.Catalog()
	require.Len(t, catalog, 6)
	for i, def := range catalog {
		want := "fs__"
		if i >= 3 {
			want = "web__"
		}
		assert.Contains(t, def.Name, want)
		assert.NotEmpty(t, def.InputSchema)
	}
}

func TestRegistry_FailedServerIsExcluded(t *testing.T) {
	servers := map[string]*fakeServer{"fs": newFakeServer("fs")}
	r := toolserver.NewRegistry(toolserver.WithConnector(inMemoryConnector(servers)))
	defer func() { _ = r.DisconnectAll() }()

	r.ConnectAll(context.Background(), []types.ToolServerDefinition{stdioDef("broken"), stdioDef("fs")})

	failures := r.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "broken", failures[0].Server)
	assert.True(t, aoserr.HasCode(failures[0].Err, aoserr.CodeToolServerConnectFailure))

	for _, def := range r.Catalog() {
		assert.NotContains(t, def.Name, "broken__")
	}
	assert.Len(t, r.Catalog(), 3)

	raw, err := json.Marshal(failures[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"server":"broken"`)
}

func TestRegistry_RejectedDefinitions(t *testing.T) {
	servers := map[string]*fakeServer{
		"fs":   newFakeServer("fs"),
		"a__b": newFakeServer("a__b"),
	}

	tests := []struct {
		name string
		defs []types.ToolServerDefinition
		want string
	}{
		{"empty name", []types.ToolServerDefinition{stdioDef("")}, ""},
		{"separator in name", []types.ToolServerDefinition{stdioDef("a__b")}, "a__b"},
		{"duplicate name", []types.ToolServerDefinition{stdioDef("fs"), stdioDef("fs")}, "fs"},
		{"unknown transport", []types.ToolServerDefinition{{Name: "fs", Transport: "pigeon"}}, "fs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := toolserver.NewRegistry(toolserver.WithConnector(inMemoryConnector(servers)))
			defer func() { _ = r.DisconnectAll() }()

			r.ConnectAll(context.Background(), tt.defs)
			failures := r.Failures()
			require.Len(t, failures, 1)
			assert.Equal(t, tt.want, failures[0].Server)
			assert.True(t, aoserr.HasCode(failures[0].Err, aoserr.CodeToolServerConnectFailure))
		})
	}
}

func TestRegistry_UnresolvableSecret(t *testing.T) {
	servers := map[string]*fakeServer{"fs": newFakeServer("fs"), "web": newFakeServer("web")}
	r := toolserver.NewRegistry(
		toolserver.WithConnector(inMemoryConnector(servers)),
		toolserver.WithSecretResolver(mapResolver{"keyring://agentos/web": "token"}),
	)
	defer func() { _ = r.DisconnectAll() }()

	fs := stdioDef("fs")
	fs.Env = map[string]string{"TOKEN": "keyring://agentos/missing"}
	web := stdioDef("web")
	web.Env = map[string]string{"TOKEN": "keyring://agentos/web"}

	r.ConnectAll(context.Background(), []types.ToolServerDefinition{fs, web})

	require.Len(t, r.Failures(), 1)
	assert.Equal(t, "fs", r.Failures()[0].Server)
	assert.Equal(t, []string{"web"}, r.Servers())
}

func TestRegistry_Execute(t *testing.T) {
	r, servers := connectedRegistry(t, toolserver.WithToolTimeout(300*time.Millisecond))
	ctx := context.Background()

	tests := []struct {
		name       string
		call       types.ToolCall
		wantError  bool
		wantOutput string
		wantServer string
		wantTool   string
	}{
		{
			name:       "success",
			call:       types.ToolCall{ID: "toolu_1", PrefixedName: "fs__echo", Input: json.RawMessage(`{"text":"hi"}`)},
			wantOutput: "echo:hi",
			wantServer: "fs",
			wantTool:   "echo",
		},
		{
			name:       "server error",
			call:       types.ToolCall{ID: "toolu_2", PrefixedName: "web__fail", Input: json.RawMessage(`{}`)},
			wantError:  true,
			wantOutput: "disk full",
			wantServer: "web",
			wantTool:   "fail",
		},
		{
			name:       "unknown server",
			call:       types.ToolCall{ID: "toolu_3", PrefixedName: "db__query", Input: json.RawMessage(`{}`)},
			wantError:  true,
			wantServer: "db",
			wantTool:   "query",
		},
		{
			name:       "no separator",
			call:       types.ToolCall{ID: "toolu_4", PrefixedName: "echo"},
			wantError:  true,
			wantServer: "echo",
			wantTool:   "echo",
		},
		{
			name:       "timeout",
			call:       types.ToolCall{ID: "toolu_5", PrefixedName: "fs__slow"},
			wantError:  true,
			wantServer: "fs",
			wantTool:   "slow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := r.Execute(ctx, tt.call)
			assert.Equal(t, tt.call.ID, rec.ToolCallID)
			assert.Equal(t, tt.wantServer, rec.ServerName)
			assert.Equal(t, tt.wantTool, rec.ToolName)
			assert.Equal(t, tt.wantError, rec.IsError)
			assert.GreaterOrEqual(t, rec.DurationMs, int64(0))
			if tt.wantOutput != "" {
				assert.Equal(t, tt.wantOutput, rec.Output)
			} else {
				assert.NotEmpty(t, rec.Output)
			}
		})
	}

	assert.Positive(t, servers["fs"].calls.Load())
}

func TestRegistry_InvalidInputNeverReachesServer(t *testing.T) {
	r, servers := connectedRegistry(t)

	rec := r.Execute(context.Background(), types.ToolCall{
		ID:           "toolu_bad",
		PrefixedName: "fs__echo",
		Input:        json.RawMessage(`{"text":42}`),
	})

	assert.True(t, rec.IsError)
	assert.Contains(t, rec.Output, "Invalid input")
	assert.Zero(t, servers["fs"].calls.Load())
}

func TestRegistry_DisconnectAllIsIdempotent(t *testing.T) {
	r, _ := connectedRegistry(t)

	require.NoError(t, r.DisconnectAll())
	require.NoError(t, r.DisconnectAll())

	assert.Empty(t, r.Catalog())
	rec := r.Execute(context.Background(), types.ToolCall{ID: "x", PrefixedName: "fs__echo", Input: json.RawMessage(`{"text":"a"}`)})
	assert.True(t, rec.IsError)
}

func TestRegistry_ConnectsConcurrently(t *testing.T) {
	var inflight, peak atomic.Int32
	slowConnector := func(def types.ToolServerDefinition, l *slog.Logger) (toolserver.Connection, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inflight.Add(-1)
		return toolserver.NewInMemoryConnection(def.Name, newFakeServer(def.Name).Server), nil
	}

	r := toolserver.NewRegistry(toolserver.WithConnector(slowConnector))
	defer func() { _ = r.DisconnectAll() }()

	r.ConnectAll(context.Background(), []types.ToolServerDefinition{stdioDef("a"), stdioDef("b"), stdioDef("c")})
	assert.Empty(t, r.Failures())
	assert.Equal(t, []string{"a", "b", "c"}, r.Servers())
	assert.Greater(t, peak.Load(), int32(1))
}

func TestRegistry_RealTransportsEndToEnd(t *testing.T) {
	sseURL, _ := serveRemote(t, types.TransportSSE, newFakeServer("events"))
	httpURL, _ := serveRemote(t, types.TransportHTTP, newFakeServer("stream"))

	r := toolserver.NewRegistry(toolserver.WithConnectTimeout(20 * time.Second))
	defer func() { assert.NoError(t, r.DisconnectAll()) }()

	r.ConnectAll(context.Background(), []types.ToolServerDefinition{
		helperStdioDef(t, "local"),
		{Name: "events", Transport: types.TransportSSE, URL: sseURL},
		{Name: "stream", Transport: types.TransportHTTP, URL: httpURL},
	})
	require.Empty(t, r.Failures())
	require.Len(t, r.Catalog(), 9)

	for _, server := range []string{"local", "events", "stream"} {
		t.Run(server, func(t *testing.T) {
			rec := r.Execute(context.Background(), types.ToolCall{
				ID:           "toolu_" + server,
				PrefixedName: toolserver.Namespace(server, "echo"),
				Input:        json.RawMessage(`{"text":"hi"}`),
			})
			assert.False(t, rec.IsError, rec.Output)
			assert.Equal(t, "echo:hi", rec.Output)
			assert.Equal(t, server, rec.ServerName)
		})
	}
}

func TestRegistry_DeniedTransport(t *testing.T) {
	servers := map[string]*fakeServer{"fs": newFakeServer("fs"), "web": newFakeServer("web")}
	r := toolserver.NewRegistry(
		toolserver.WithConnector(inMemoryConnector(servers)),
		toolserver.WithDeniedTransports(types.TransportStdio),
	)
	defer func() { _ = r.DisconnectAll() }()

	web := types.ToolServerDefinition{Name: "web", Transport: types.TransportHTTP, URL: "http://localhost:1/mcp"}
	r.ConnectAll(context.Background(), []types.ToolServerDefinition{stdioDef("fs"), web})

	require.Len(t, r.Failures(), 1)
	assert.Equal(t, "fs", r.Failures()[0].Server)
	assert.Equal(t, aoserr.CodeToolServerTransportDenied, aoserr.CodeOf(r.Failures()[0].Err))
	assert.Zero(t, servers["fs"].calls.Load())
	assert.Equal(t, []string{"web"}, r.Servers())
}

func TestRegistry_ValuesVerbatimWithoutResolver(t *testing.T) {
	url, headers := serveRemote(t, types.TransportHTTP, newFakeServer("stream"))

	r := toolserver.NewRegistry()
	defer func() { _ = r.DisconnectAll() }()

	r.ConnectAll(context.Background(), []types.ToolServerDefinition{{
		Name:      "stream",
		Transport: types.TransportHTTP,
		URL:       url,
		Headers:   map[string]string{"X-Token": "keyring://agentos/anthropic"},
	}})
	require.Empty(t, r.Failures())
	assert.Equal(t, "keyring://agentos/anthropic", headers.get("X-Token"))
}
