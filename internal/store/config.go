// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package store

// StorageConfig controls which backend the store factory uses.
type StorageConfig struct {
	Backend string // "sqlite" or "memory"; empty means sqlite.
	Path    string // database file for file-backed backends
}
