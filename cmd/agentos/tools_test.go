// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolsCmd_ReportsFailures(t *testing.T) {
	withMockKeyring(t)

	cfg := writeFile(t, "agentos.yaml", testConfigYAML)
	agentFile := writeFile(t, "agent.yaml", `
name: toolsmith
system_prompt: Use tools.
tool_servers:
  - name: pigeon
    transport: carrier-pigeon
  - name: bad__name
    transport: http
    url: http://127.0.0.1:1/mcp
`)

	out, err := execute(t, "", "tools", "-c", cfg, "-f", agentFile)
	require.NoError(t, err)
	assert.Contains(t, out, "toolsmith: 0 tools from 0 servers")
	assert.Contains(t, out, "pigeon:")
	assert.Contains(t, out, "bad__name:")
}

func TestToolsCmd_RequiresFile(t *testing.T) {
	_, err := execute(t, "", "tools")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "file" not set`)
}
