// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/config"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a single message with an agent",
		Long:  "Load an agent definition, process one user message through guardrails, tool servers and the model, and print the reply.",
		RunE:  runRun,
	}

	cmd.Flags().StringP("file", "f", "", "agent definition file (YAML)")
	cmd.Flags().StringP("message", "m", "", "user message")
	cmd.Flags().String("session", "", "session id recorded in the audit log")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("message")

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")
	msg, _ := cmd.Flags().GetString("message")
	sessionID, _ := cmd.Flags().GetString("session")
	if strings.TrimSpace(msg) == "" {
		return aoserr.New(aoserr.CodeCLIInputInvalid, "message must not be empty")
	}

	af, err := config.LoadAgentFile(file)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rt, err := runtimeFactory(cmd.Context(), cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	sess := newLocalSession(af, sessionID)
	resp, err := rt.Loop.ProcessMessage(cmd.Context(), sess.request(msg))
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(cmd.OutOrStdout(), renderResponse(af.Name, resp))
	return err
}
