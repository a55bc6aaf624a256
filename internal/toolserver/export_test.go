// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package toolserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// NewInMemoryConnection returns a connection wired to server through an
// in-process transport pair.
func NewInMemoryConnection(name string, server *mcp.Server) Connection {
	return newSession(name, types.TransportStdio, func() (mcp.Transport, error) {
		serverT, clientT := mcp.NewInMemoryTransports()
		if _, err := server.Connect(context.Background(), serverT, nil); err != nil {
			return nil, err
		}
		return clientT, nil
	}, slog.Default())
}
