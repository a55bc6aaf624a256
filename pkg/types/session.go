// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package types

// SessionStatus is the lifecycle state of an end-user session. Status only
// ever moves toward a terminal state.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusEnded     SessionStatus = "ended"
	SessionStatusEscalated SessionStatus = "escalated"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusActive, SessionStatusEnded, SessionStatusEscalated:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further turns may be processed.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusEnded || s == SessionStatusEscalated
}

// SessionUpdates is the session bookkeeping produced by one processed turn.
// The runtime never stores it; the caller persists it and hands it back.
type SessionUpdates struct {
	TurnCount      int           `json:"turn_count"`
	FailedAttempts int           `json:"failed_attempts"`
	Status         SessionStatus `json:"status"`
}
