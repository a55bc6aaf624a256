// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/config"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/secrets"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/server"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools an agent's servers advertise",
		Long:  "Connect every tool server in an agent definition, print the namespaced catalog and any connection failures, then disconnect.",
		RunE:  runTools,
	}

	cmd.Flags().StringP("file", "f", "", "agent definition file (YAML)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runTools(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")
	af, err := config.LoadAgentFile(file)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	inspector := server.RegistryInspector{
		NewRegistry: newRegistryFactory(cfg, secrets.NewResolver(secretStoreFactory()), slog.Default()),
	}
	out, err := inspector.Inspect(cmd.Context(), af.ToolServers)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s: %d tools from %d servers", af.Name, len(out.Tools), len(af.ToolServers)-len(out.Failures))))
	for _, t := range out.Tools {
		line := "  " + t.Name
		if t.Description != "" {
			line += dimStyle.Render("  " + t.Description)
		}
		_, _ = fmt.Fprintln(w, line)
	}
	for _, f := range out.Failures {
		_, _ = fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("  %s: %s", f.Server, f.Error)))
	}
	return nil
}
