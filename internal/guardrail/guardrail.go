// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

// Package guardrail enforces session-level policy around each processed
// turn: the pre-check that decides whether a turn may run at all, and the
// post-turn transition that advances the session counters.
package guardrail

import (
	"fmt"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// Action is the terminal step a blocked turn asks the caller to take.
type Action string

const (
	ActionNone       Action = ""
	ActionEndSession Action = "end_session"
	ActionEscalate   Action = "escalate"
)

const (
	ReasonSessionEnded     = "Session has ended"
	ReasonSessionEscalated = "Session has been escalated to a human"
)

// Decision is the outcome of Check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Action  Action `json:"action,omitempty"`
}

// Check decides whether a new message may be processed. turnCount is the
// number of turns completed before this one. A nil cfg is unrestricted
// apart from the default turn limit.
func Check(cfg *types.GuardrailConfig, turnCount int, status types.SessionStatus) Decision {
	switch status {
	case types.SessionStatusEnded:
		return Decision{Reason: ReasonSessionEnded}
	case types.SessionStatusEscalated:
		return Decision{Reason: ReasonSessionEscalated}
	}

	limit := cfg.MaxTurns()
	if turnCount >= limit {
		return Decision{
			Reason: fmt.Sprintf("Maximum turns per session (%d) reached", limit),
			Action: ActionEndSession,
		}
	}

	return Decision{Allowed: true}
}

// Apply returns the session state after a blocked turn. The turn counter is
// not advanced; only the action may move the status.
func Apply(d Decision, prev types.SessionUpdates) types.SessionUpdates {
	next := prev
	if next.Status == "" {
		next.Status = types.SessionStatusActive
	}
	switch d.Action {
	case ActionEndSession:
		next.Status = types.SessionStatusEnded
	case ActionEscalate:
		next.Status = types.SessionStatusEscalated
	}
	return next
}

// Advance computes the session state after a completed turn. notice is
// non-empty only when this turn ended the session.
func Advance(cfg *types.GuardrailConfig, prev types.SessionUpdates) (types.SessionUpdates, string) {
	limit := cfg.MaxTurns()
	next := types.SessionUpdates{
		TurnCount:      prev.TurnCount + 1,
		FailedAttempts: prev.FailedAttempts,
		Status:         types.SessionStatusActive,
	}
	if next.TurnCount < limit {
		return next, ""
	}

	next.Status = types.SessionStatusEnded
	return next, fmt.Sprintf("This session has reached the maximum of %d turns and has now ended.", limit)
}

// BlockedReply is the in-character message shown to the end user when a
// turn is refused.
func BlockedReply(d Decision) string {
	switch {
	case d.Action == ActionEndSession:
		return "We've reached the end of this conversation. Thank you for chatting! Please start a new session if you need anything else."
	case d.Action == ActionEscalate, d.Reason == ReasonSessionEscalated:
		return "This conversation has been handed over to a member of our team, who will follow up with you directly."
	default:
		return "This conversation has ended. Please start a new session to continue."
	}
}
