// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package types

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a RuntimeMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a conversational role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// RuntimeMessage is one turn of an end-user conversation. Messages are
// immutable once created; an ordered slice of them forms the history that
// callers pass back in on the next turn.
type RuntimeMessage struct {
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// NewRuntimeMessage stamps a fresh message with a random ID and the current
// UTC time.
func NewRuntimeMessage(role Role, content string) RuntimeMessage {
	return RuntimeMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}
