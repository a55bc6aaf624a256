// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/config"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/secrets"
)

// doctorHTTPClient probes a running server. Tests replace it.
var doctorHTTPClient = &http.Client{Timeout: 3 * time.Second}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, configuration, provider API keys, the audit log location and whether a runtime server is reachable.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("address", "", "runtime server address to check (default server.listen)")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	cfg, cfgErr := loadConfig(cmd)
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" && cfg != nil {
		addr = cfg.Server.Listen
	}

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(cmd, cfgErr) }},
		{"Providers", func() string { return checkProviders(cfg) }},
		{"Audit Log", func() string { return checkAudit(cfg) }},
		{"Server", func() string { return checkServer(addr) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}
	return nil
}

func checkBinary() string {
	return fmt.Sprintf("agentos %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(cmd *cobra.Command, loadErr error) string {
	if loadErr != nil {
		return fmt.Sprintf("error: %s", loadErr)
	}
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path, _ = config.DefaultConfigPath()
	}
	return fmt.Sprintf("loaded from %s", path)
}

// checkProviders reports which configured providers have a usable key. A
// key that is still a keyring reference after loading did not resolve.
func checkProviders(cfg *config.Config) string {
	if cfg == nil {
		return "unknown (config not loaded)"
	}
	if len(cfg.Providers) == 0 {
		return "none configured"
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		key := cfg.Providers[name].APIKey
		switch {
		case key == "":
			parts = append(parts, name+" (no key)")
		case secrets.IsReference(key):
			parts = append(parts, name+" (unresolved "+key+")")
		default:
			parts = append(parts, name+" (ok)")
		}
	}
	return strings.Join(parts, ", ") + "; default " + cfg.Models.Default
}

func checkAudit(cfg *config.Config) string {
	if cfg == nil {
		return "unknown (config not loaded)"
	}
	if !cfg.Storage.Audit.Enabled {
		return "disabled"
	}
	if cfg.Storage.Audit.Backend != "sqlite" {
		return cfg.Storage.Audit.Backend + " backend"
	}

	dir := filepath.Dir(cfg.Storage.Audit.Path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Sprintf("%s (directory missing: %s)", cfg.Storage.Audit.Path, dir)
	}
	free, err := availableBytes(dir)
	if err != nil {
		return fmt.Sprintf("%s (unable to check disk space: %s)", cfg.Storage.Audit.Path, err)
	}
	return fmt.Sprintf("%s (%s available)", cfg.Storage.Audit.Path, formatBytes(free))
}

func checkServer(addr string) string {
	if addr == "" {
		return "no address configured"
	}
	resp, err := doctorHTTPClient.Get("http://" + addr + "/health")
	if err != nil {
		return fmt.Sprintf("not running at %s (run 'agentos serve')", addr)
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Status string `json:"status"`
	}
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil {
		return fmt.Sprintf("unexpected response from %s (HTTP %d)", addr, resp.StatusCode)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
