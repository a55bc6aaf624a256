// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// session is the MCP client session shared by every transport variant.
// Variants differ only in how they build the mcp.Transport.
type session struct {
	name      string
	kind      types.TransportKind
	transport func() (mcp.Transport, error)
	logger    *slog.Logger

	mu      sync.Mutex
	client  *mcp.Client
	current *mcp.ClientSession
	stop    context.CancelFunc
}

func newSession(name string, kind types.TransportKind, transport func() (mcp.Transport, error), logger *slog.Logger) *session {
	return &session{
		name:      name,
		kind:      kind,
		transport: transport,
		logger:    logger,
		client:    mcp.NewClient(&mcp.Implementation{Name: ClientName, Version: ClientVersion}, nil),
	}
}

func (s *session) Name() string                   { return s.name }
func (s *session) Transport() types.TransportKind { return s.kind }

func (s *session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return nil
	}

	transport, err := s.transport()
	if err != nil {
		return aoserr.Wrap(err, aoserr.CodeToolServerConnectFailure, "building transport", aoserr.FieldServer(s.name))
	}

	// Transports keep their streams alive only as long as the context given
	// to client.Connect, so that context is detached from ctx. ctx still
	// bounds the handshake.
	streamCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	abort := context.AfterFunc(ctx, stop)
	cs, err := s.client.Connect(streamCtx, transport, nil)
	if !abort() {
		// ctx ended during the handshake and the stream is already gone.
		if err == nil {
			_ = cs.Close()
		}
		stop()
		return aoserr.Wrap(ctx.Err(), aoserr.CodeToolServerConnectFailure, "connecting to tool server", aoserr.FieldServer(s.name))
	}
	if err != nil {
		stop()
		return aoserr.Wrap(err, aoserr.CodeToolServerConnectFailure, "connecting to tool server", aoserr.FieldServer(s.name))
	}

	s.current = cs
	s.stop = stop
	s.logger.Debug("tool server connected")
	return nil
}

func (s *session) active() *mcp.ClientSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *session) ListTools(ctx context.Context) ([]Tool, error) {
	cs := s.active()
	if cs == nil {
		return nil, aoserr.New(aoserr.CodeToolServerNotConnected, "tool server not connected", aoserr.FieldServer(s.name))
	}

	tools := []Tool{}
	for tool, err := range cs.Tools(ctx, nil) {
		if err != nil {
			return nil, aoserr.Wrap(err, aoserr.CodeToolServerListFailure, "listing tools", aoserr.FieldServer(s.name))
		}
		t := Tool{Name: tool.Name, Description: tool.Description}
		if tool.InputSchema != nil {
			raw, err := json.Marshal(tool.InputSchema)
			if err != nil {
				return nil, aoserr.Wrap(err, aoserr.CodeToolServerListFailure, "encoding input schema",
					aoserr.FieldServer(s.name), aoserr.FieldTool(tool.Name))
			}
			t.InputSchema = raw
		}
		tools = append(tools, t)
	}
	return tools, nil
}

func (s *session) Invoke(ctx context.Context, tool string, input json.RawMessage, timeout time.Duration) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tool invocation panicked", "tool", tool, "panic", r)
			res = Result{IsError: true, Output: fmt.Sprintf("Tool %q failed unexpectedly: %v", tool, r)}
		}
	}()

	cs := s.active()
	if cs == nil {
		return Result{IsError: true, Output: fmt.Sprintf("Tool server %q is not connected", s.name)}
	}

	start := time.Now()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	limit := timeout
	if deadline, ok := ctx.Deadline(); ok {
		limit = deadline.Sub(start)
	}

	var args any = map[string]any{}
	if len(input) > 0 {
		args = input
	}

	out, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{IsError: true, Output: fmt.Sprintf("Tool %q timed out after %s", tool, limit.Round(time.Millisecond))}
		}
		return Result{IsError: true, Output: fmt.Sprintf("Tool %q failed: %v", tool, err)}
	}
	if out == nil {
		return Result{}
	}
	return Result{Output: contentText(out), IsError: out.IsError}
}

func (s *session) Disconnect() error {
	s.mu.Lock()
	cs, stop := s.current, s.stop
	s.current, s.stop = nil, nil
	s.mu.Unlock()

	if cs == nil {
		return nil
	}
	defer stop()
	s.logger.Debug("tool server disconnecting")
	if err := cs.Close(); err != nil {
		return aoserr.Wrap(err, aoserr.CodeToolServerDisconnectFailure, "closing tool server session", aoserr.FieldServer(s.name))
	}
	return nil
}

// contentText flattens a tool result into text. Non-text content is kept
// as its JSON encoding.
func contentText(res *mcp.CallToolResult) string {
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
			continue
		}
		if raw, err := json.Marshal(c); err == nil {
			parts = append(parts, string(raw))
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if raw, err := json.Marshal(res.StructuredContent); err == nil {
			parts = append(parts, string(raw))
		}
	}
	return strings.Join(parts, "\n")
}
