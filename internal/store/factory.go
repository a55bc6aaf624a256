// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package store

import (
	"sync"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

// RunStoreFactory opens a run store for a backend.
type RunStoreFactory func(cfg *StorageConfig) (RunStore, error)

var (
	factories   = map[string]RunStoreFactory{"memory": func(*StorageConfig) (RunStore, error) { return NewMemoryRunStore(), nil }}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init().
func RegisterBackend(name string, f RunStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

func resolveBackend(cfg *StorageConfig) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewRunStore opens the run store selected by cfg.
func NewRunStore(cfg *StorageConfig) (RunStore, error) {
	if cfg == nil {
		cfg = &StorageConfig{}
	}
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	f, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, aoserr.Errorf(aoserr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}
	return f(cfg)
}
