// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package main

import (
	"github.com/google/uuid"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/agent"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/config"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// localSession carries the caller-owned session state between turns, the
// way the builder does for deployed agents.
type localSession struct {
	id      string
	agent   *config.AgentFile
	state   types.SessionUpdates
	history []types.RuntimeMessage
}

func newLocalSession(af *config.AgentFile, id string) *localSession {
	if id == "" {
		id = uuid.NewString()
	}
	return &localSession{
		id:    id,
		agent: af,
		state: types.SessionUpdates{Status: types.SessionStatusActive},
	}
}

func (s *localSession) request(msg string) agent.ProcessRequest {
	return agent.ProcessRequest{
		SessionID:    s.id,
		SystemPrompt: s.agent.SystemPrompt,
		AgentConfig: agent.AgentConfig{
			Model:      s.agent.Model,
			MaxTokens:  s.agent.MaxTokens,
			Guardrails: s.agent.Guardrails,
		},
		SessionStatus:  s.state.Status,
		TurnCount:      s.state.TurnCount,
		FailedAttempts: s.state.FailedAttempts,
		History:        s.history,
		UserMessage:    msg,
		ToolServers:    s.agent.ToolServers,
	}
}

// apply records a completed turn.
func (s *localSession) apply(msg string, resp *agent.ProcessResponse) {
	s.history = append(s.history, types.NewRuntimeMessage(types.RoleUser, msg), resp.Message)
	s.state = resp.SessionUpdates
}

func (s *localSession) closed() bool {
	return s.state.Status.Terminal()
}
