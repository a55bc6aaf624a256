// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package toolserver

import (
	"log/slog"
	"os"
	"os/exec"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// StdioConnection launches the server as a child process and speaks the
// protocol over its stdin and stdout.
type StdioConnection struct {
	*session
	def types.ToolServerDefinition
}

// NewStdioConnection validates def and returns an unconnected connection.
func NewStdioConnection(def types.ToolServerDefinition, logger *slog.Logger) (*StdioConnection, error) {
	if def.Command == "" {
		return nil, aoserr.New(aoserr.CodeToolServerDefinitionInvalid,
			"stdio tool server requires a command", aoserr.FieldServer(def.Name))
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &StdioConnection{def: def}
	// exec.Cmd cannot be restarted, so every Connect builds a fresh one.
	c.session = newSession(def.Name, types.TransportStdio, func() (mcp.Transport, error) {
		return &mcp.CommandTransport{Command: c.command()}, nil
	}, logger)
	return c, nil
}

func (c *StdioConnection) command() *exec.Cmd {
	cmd := exec.Command(c.def.Command, c.def.Args...)
	cmd.Dir = c.def.Dir
	if len(c.def.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(c.def.Env)...)
	}
	return cmd
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
