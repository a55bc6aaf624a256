// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package types_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

func TestParseTransportKind(t *testing.T) {
	tests := []struct {
		in   string
		want types.TransportKind
	}{
		{"stdio", types.TransportStdio},
		{"Subprocess", types.TransportStdio},
		{"SSE", types.TransportSSE},
		{"event-stream", types.TransportSSE},
		{"http", types.TransportHTTP},
		{" streamable-http ", types.TransportHTTP},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := types.ParseTransportKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}

	_, err := types.ParseTransportKind("websocket")
	require.Error(t, err)
	assert.True(t, aoserr.HasCode(err, aoserr.CodeToolServerDefinitionInvalid))
}

func TestSessionStatusTerminal(t *testing.T) {
	assert.False(t, types.SessionStatusActive.Terminal())
	assert.True(t, types.SessionStatusEnded.Terminal())
	assert.True(t, types.SessionStatusEscalated.Terminal())
	assert.False(t, types.SessionStatus("paused").Valid())
}

func TestGuardrailMaxTurns(t *testing.T) {
	var nilCfg *types.GuardrailConfig
	assert.Equal(t, 50, nilCfg.MaxTurns())
	assert.Equal(t, 50, (&types.GuardrailConfig{}).MaxTurns())
	assert.Equal(t, 7, (&types.GuardrailConfig{ResourceLimits: types.ResourceLimits{MaxTurnsPerSession: 7}}).MaxTurns())
}

func TestNewRuntimeMessage(t *testing.T) {
	msg := types.NewRuntimeMessage(types.RoleAssistant, "hello")
	_, err := uuid.Parse(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAssistant, msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestToolServerDefinitionDecodesTransportAliases(t *testing.T) {
	var defs []types.ToolServerDefinition
	err := json.Unmarshal([]byte(`[
		{"name":"fs","transport":"subprocess","command":"fs-server"},
		{"name":"web","transport":"streamable-http","url":"https://example.com/mcp"},
		{"name":"odd","transport":"carrier-pigeon"}
	]`), &defs)
	require.NoError(t, err)

	assert.Equal(t, types.TransportStdio, defs[0].Transport)
	assert.Equal(t, types.TransportHTTP, defs[1].Transport)
	assert.Equal(t, types.TransportKind("carrier-pigeon"), defs[2].Transport)
	assert.False(t, defs[2].Transport.Valid())
}
