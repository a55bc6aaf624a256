// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/config"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/secrets"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

// NewRootCmd creates the root agentos command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentos",
		Short:         "agentos runs deployed agents",
		Long:          "agentos executes agents exported by the builder: guardrail checks, MCP tool servers and the tool-use loop against a model backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file (default ~/.config/agentos/agentos.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (overrides logging.level)")
	root.PersistentFlags().String("log-format", "", "log format: text or json (overrides logging.format)")

	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newChatCmd(),
		newToolsCmd(),
		newSecretCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return root
}

// setupLogging installs the default slog handler from flags. The config
// file's logging section applies later, once it is loaded.
func setupLogging(cmd *cobra.Command) error {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "text"
	}
	return installLogger(cmd.ErrOrStderr(), level, format)
}

func installLogger(w io.Writer, level, format string) error {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return aoserr.Wrap(err, aoserr.CodeCLIInputInvalid, "parsing log level")
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch format {
	case "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return aoserr.Errorf(aoserr.CodeCLIInputInvalid, "log format must be text or json, got %q", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// secretStoreFactory creates the secrets store. Tests substitute a mock.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// loadConfig reads the config named by --config, or the default path,
// bootstrapping it on first use. Flag-level logging overrides win over
// the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.Load(path, secrets.NewResolver(secretStoreFactory()))
	if err != nil {
		return nil, err
	}

	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	if level == "" {
		level = cfg.Logging.Level
	}
	if format == "" {
		format = cfg.Logging.Format
	}
	if err := installLogger(cmd.ErrOrStderr(), level, format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfigPath() string {
	path, err := config.DefaultConfigPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return config.BootstrapConfig()
}
