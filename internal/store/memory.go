// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package store

import (
	"context"
	"sync"
)

var _ RunStore = (*MemoryRunStore)(nil)

// MemoryRunStore keeps runs in process memory. Used for tests and when no
// database path is configured.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs []*RunRecord
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{}
}

func (m *MemoryRunStore) RecordRun(_ context.Context, run *RunRecord) error {
	if err := run.Prepare(); err != nil {
		return err
	}
	cp := *run
	m.mu.Lock()
	m.runs = append(m.runs, &cp)
	m.mu.Unlock()
	return nil
}

func (m *MemoryRunStore) ListRuns(_ context.Context, sessionID string, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*RunRecord
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.runs[i].SessionID == sessionID {
			cp := *m.runs[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryRunStore) Close() error { return nil }
