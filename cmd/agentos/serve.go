// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/server"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the runtime HTTP API",
		Long:  "Load configuration, wire providers and the audit log, and serve the runtime API until interrupted.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	rt, err := runtimeFactory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("closing runtime", "error", err)
		}
	}()

	srv, err := newServer(rt, logger)
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}

func newServer(rt *Runtime, logger *slog.Logger) (*server.Server, error) {
	server.Version = version
	services, err := server.NewServices(rt.APILoop, server.RegistryInspector{NewRegistry: rt.NewAPIRegistry})
	if err != nil {
		return nil, aoserr.Wrap(err, aoserr.CodeCLISetupFailure, "creating services")
	}
	services.SetProviders(rt.Providers)
	if rt.Runs != nil {
		services.SetRuns(rt.Runs)
	}

	cfg := rt.Config
	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
		StreamBuffer: cfg.Server.StreamBuffer,
		Services:     services,
		Logger:       logger,
	})
	if err != nil {
		return nil, aoserr.Wrap(err, aoserr.CodeCLISetupFailure, "creating server")
	}
	return srv, nil
}

