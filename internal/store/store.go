// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

// Package store persists an audit trail of processed turns.
package store

import "context"

// DefaultListLimit bounds ListRuns when the caller passes no limit.
const DefaultListLimit = 50

// RunStore records processed turns and their tool executions.
// Implementations are safe for concurrent use.
type RunStore interface {
	RecordRun(ctx context.Context, run *RunRecord) error

	// ListRuns returns the most recent runs for a session, newest first.
	ListRuns(ctx context.Context, sessionID string, limit int) ([]*RunRecord, error)

	Close() error
}
