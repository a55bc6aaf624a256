// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

// Package toolserver manages connections to external MCP tool servers and
// presents them to the orchestration loop as one namespaced tool catalog.
package toolserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// Connection is one live connection to one tool server. Implementations
// are selected by transport kind when the connection is constructed.
type Connection interface {
	Name() string
	Transport() types.TransportKind

	// Connect establishes the transport and completes the protocol
	// handshake. The connection must not be used if it fails.
	Connect(ctx context.Context) error

	// ListTools returns the tools the server advertises, possibly none.
	ListTools(ctx context.Context) ([]Tool, error)

	// Invoke calls one tool. Failures of any kind are reported in the
	// Result rather than returned.
	Invoke(ctx context.Context, tool string, input json.RawMessage, timeout time.Duration) Result

	// Disconnect releases the transport. It is safe to call repeatedly and
	// after a failed Connect.
	Disconnect() error
}

// Tool is a tool advertised by a server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Result is the outcome of one invocation.
type Result struct {
	Output  string
	IsError bool
}

// ClientName and ClientVersion identify the runtime during the handshake.
var (
	ClientName    = "agentos"
	ClientVersion = "dev"
)

// NewConnection builds the connection variant for def.Transport.
func NewConnection(def types.ToolServerDefinition, logger *slog.Logger) (Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("server", def.Name, "transport", string(def.Transport))

	switch def.Transport {
	case types.TransportStdio:
		return NewStdioConnection(def, logger)
	case types.TransportSSE:
		return NewSSEConnection(def, logger)
	case types.TransportHTTP:
		return NewHTTPConnection(def, logger)
	default:
		return nil, aoserr.New(aoserr.CodeToolServerDefinitionInvalid,
			"unsupported transport "+string(def.Transport), aoserr.FieldServer(def.Name))
	}
}
