// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package sqlite

import (
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/store"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", newRunStore)
}

func newRunStore(cfg *store.StorageConfig) (store.RunStore, error) {
	if cfg.Path == "" {
		return nil, aoserr.New(aoserr.CodeStoreInvalidInput, "sqlite storage requires a path")
	}
	return NewRunStore(cfg.Path)
}
