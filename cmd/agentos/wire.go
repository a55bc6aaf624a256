// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/agent"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/config"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider"
	anthropicprov "github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider/anthropic"
	googleprov "github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider/google"
	openaiprov "github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider/openai"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/secrets"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/store"
	_ "github.com/autonomous-tech/autonomous-agent-os-sub000/internal/store/sqlite" // register sqlite backend
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/toolserver"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// Runtime holds the wired subsystems shared by every command.
//
// Loop and NewRegistry serve agent files the operator loaded and may
// resolve keyring references. APILoop and NewAPIRegistry serve tool server
// definitions that arrive in HTTP requests: their values are used verbatim
// and stdio servers are refused unless runtime.allow_stdio_tool_servers
// is set.
type Runtime struct {
	Config      *config.Config
	Providers   *provider.Registry
	Runs        store.RunStore // nil when the audit log is disabled
	NewRegistry agent.RegistryFactory
	Loop        *agent.Loop

	NewAPIRegistry agent.RegistryFactory
	APILoop        *agent.Loop
}

// runtimeFactory builds a Runtime. Tests substitute one with scripted
// backends.
var runtimeFactory = WireRuntime

// WireRuntime creates the provider registry, optional audit store and the
// agent loop from cfg.
func WireRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	providers := provider.NewRegistry(logger)
	registerBuiltinProviders(ctx, cfg, providers, logger)

	if err := providers.SetDefault(cfg.Models.Default); err != nil {
		_ = providers.Close()
		return nil, aoserr.Wrapf(err, aoserr.CodeCLISetupFailure, "setting default model %s", cfg.Models.Default)
	}
	if len(cfg.Models.Failover) > 0 {
		if err := providers.SetFailover(cfg.Models.Failover); err != nil {
			_ = providers.Close()
			return nil, aoserr.Wrap(err, aoserr.CodeCLISetupFailure, "setting failover chain")
		}
	}

	var runs store.RunStore
	if cfg.Storage.Audit.Enabled {
		var err error
		runs, err = store.NewRunStore(&store.StorageConfig{
			Backend: cfg.Storage.Audit.Backend,
			Path:    cfg.Storage.Audit.Path,
		})
		if err != nil {
			_ = providers.Close()
			return nil, aoserr.Wrap(err, aoserr.CodeCLISetupFailure, "opening audit store")
		}
	}

	newRegistry := newRegistryFactory(cfg, secrets.NewResolver(secretStoreFactory()), logger)
	newAPIRegistry := newAPIRegistryFactory(cfg, logger)
	newLoop := func(f agent.RegistryFactory) *agent.Loop {
		return agent.NewLoop(agent.LoopConfig{
			Backends:         providers,
			NewRegistry:      f,
			RunStore:         runs,
			MaxParallelTools: cfg.Runtime.MaxParallelTools,
			DefaultMaxTokens: cfg.Runtime.MaxTokens,
			Logger:           logger,
		})
	}

	return &Runtime{
		Config:         cfg,
		Providers:      providers,
		Runs:           runs,
		NewRegistry:    newRegistry,
		Loop:           newLoop(newRegistry),
		NewAPIRegistry: newAPIRegistry,
		APILoop:        newLoop(newAPIRegistry),
	}, nil
}

// Close releases the provider clients and the audit store.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Providers != nil {
		if err := rt.Providers.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.Runs != nil {
		if err := rt.Runs.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newRegistryFactory returns a factory for per-run tool registries that
// resolve keyring references in tool server env and headers.
func newRegistryFactory(cfg *config.Config, resolver toolserver.SecretResolver, logger *slog.Logger) agent.RegistryFactory {
	return func() agent.ToolRegistry {
		return toolserver.NewRegistry(
			toolserver.WithSecretResolver(resolver),
			toolserver.WithLogger(logger),
			toolserver.WithConnectTimeout(cfg.Runtime.ConnectTimeout),
			toolserver.WithToolTimeout(cfg.Runtime.ToolTimeout),
		)
	}
}

// newAPIRegistryFactory returns a factory for registries fed by request
// bodies. No secret resolver is installed, so keyring references are sent
// as literal strings.
func newAPIRegistryFactory(cfg *config.Config, logger *slog.Logger) agent.RegistryFactory {
	opts := []toolserver.Option{
		toolserver.WithLogger(logger),
		toolserver.WithConnectTimeout(cfg.Runtime.ConnectTimeout),
		toolserver.WithToolTimeout(cfg.Runtime.ToolTimeout),
	}
	if !cfg.Runtime.AllowStdioToolServers {
		opts = append(opts, toolserver.WithDeniedTransports(types.TransportStdio))
	}
	return func() agent.ToolRegistry {
		return toolserver.NewRegistry(opts...)
	}
}

// backendFactory builds a provider.Backend from a ProviderConfig.
type backendFactory func(context.Context, config.ProviderConfig) (provider.Backend, error)

// builtinBackendFactories maps provider names to their constructors.
// Declared as a variable so tests can inject failing factories.
var builtinBackendFactories = map[string]backendFactory{
	"anthropic": func(_ context.Context, pc config.ProviderConfig) (provider.Backend, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL})
	},
	"google": func(ctx context.Context, pc config.ProviderConfig) (provider.Backend, error) {
		return googleprov.New(ctx, googleprov.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL})
	},
	"openai": func(_ context.Context, pc config.ProviderConfig) (provider.Backend, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL})
	},
	"openrouter": func(_ context.Context, pc config.ProviderConfig) (provider.Backend, error) {
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = openaiprov.OpenRouterBaseURL
		}
		return openaiprov.New(openaiprov.Config{Name: "openrouter", APIKey: pc.APIKey, BaseURL: baseURL})
	},
}

// registerBuiltinProviders registers every configured provider. Empty or
// unresolved keys and constructor failures are logged and skipped; a turn
// that routes to a missing provider fails then.
func registerBuiltinProviders(ctx context.Context, cfg *config.Config, reg *provider.Registry, logger *slog.Logger) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Providers[name]
		if pc.APIKey == "" || secrets.IsReference(pc.APIKey) {
			logger.Warn("skipping provider without a usable API key", "provider", name)
			continue
		}
		factory, ok := builtinBackendFactories[name]
		if !ok {
			logger.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		b, err := factory(ctx, pc)
		if err != nil {
			logger.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(name, b)
		logger.Info("registered provider", "provider", name)
	}
}
