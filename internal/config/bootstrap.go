// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

//go:embed agentos.yaml.default
var DefaultConfigYAML []byte

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", aoserr.Wrap(err, aoserr.CodeConfigLoadReadFailure, "resolving home directory")
	}
	return filepath.Join(home, ".config", "agentos"), nil
}

// DefaultConfigPath returns ~/.config/agentos/agentos.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "agentos.yaml"), nil
}

// DefaultAuditPath returns ~/.config/agentos/audit.db.
func DefaultAuditPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audit.db"), nil
}

// BootstrapConfig writes the commented default config to the default path
// if nothing exists there yet. It returns the path written, or "" when it
// did nothing. Failures are logged and otherwise ignored.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}
	if _, err := os.Stat(cfgPath); err == nil {
		return ""
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", cfgPath, "error", err)
		return ""
	}
	if err := os.WriteFile(cfgPath, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
