// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package provider

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/health"
)

// Registry holds the configured backends and resolves "provider/model"
// references, walking a failover chain when the chosen backend is down.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend

	defaultRef string
	failover   []string
	logger     *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{backends: make(map[string]Backend), logger: logger}
}

func (r *Registry) Register(name string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
}

func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, aoserr.New(aoserr.CodeProviderNotFound, "provider not found: "+name, aoserr.FieldProvider(name))
	}
	return b, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefault sets the ref used when a request names no model.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRefLocked(ref); err != nil {
		return err
	}
	r.defaultRef = ref
	return nil
}

// SetFailover sets the ordered refs tried after the primary one.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range chain {
		if err := r.checkRefLocked(ref); err != nil {
			return err
		}
	}
	r.failover = append([]string(nil), chain...)
	return nil
}

// MaxAttempts is the primary plus every failover candidate.
func (r *Registry) MaxAttempts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return 1 + len(r.failover)
}

// Route picks a healthy backend for modelRef, or the default when modelRef
// is empty. Providers named in exclude are skipped.
func (r *Registry) Route(ctx context.Context, modelRef string, exclude []string) (Backend, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, err := r.resolveRefLocked(modelRef)
	if err != nil {
		return nil, "", err
	}

	for _, candidate := range append([]string{ref}, r.failover...) {
		name, _ := parseRef(candidate)
		if slices.Contains(exclude, name) {
			continue
		}
		b, model, err := r.tryRefLocked(ctx, candidate)
		if err == nil {
			return b, model, nil
		}
	}

	return nil, "", aoserr.New(aoserr.CodeProviderAllUnavailable, "all providers unavailable: no healthy provider found")
}

// Health returns a snapshot for every backend that reports one.
func (r *Registry) Health() map[string]health.Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]health.Metrics, len(r.backends))
	for name, b := range r.backends {
		if hr, ok := b.(HealthReporter); ok {
			out[name] = hr.HealthMetrics()
		}
	}
	return out
}

// Backend returns a Backend bound to modelRef. Each Chat call is routed
// through the registry and retried on the next candidate when a backend
// fails.
func (r *Registry) Backend(modelRef string) Backend {
	return &routedBackend{registry: r, ref: modelRef}
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, b := range r.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return aoserr.Join(errs...)
	}
	return nil
}

// resolveRefLocked requires r.mu. Explicit model names must be qualified.
func (r *Registry) resolveRefLocked(modelRef string) (string, error) {
	if modelRef != "" && modelRef != "default" {
		if !strings.Contains(modelRef, "/") {
			return "", aoserr.Errorf(aoserr.CodeProviderInvalidModelRef,
				"model name %q must use provider/model format", modelRef)
		}
		return modelRef, nil
	}
	if r.defaultRef == "" {
		return "", aoserr.New(aoserr.CodeProviderNoDefault, "no default provider configured")
	}
	return r.defaultRef, nil
}

func (r *Registry) checkRefLocked(ref string) error {
	name, _ := parseRef(ref)
	if _, ok := r.backends[name]; !ok {
		return aoserr.New(aoserr.CodeProviderNotFound, "provider not registered: "+name, aoserr.FieldProvider(name))
	}
	return nil
}

func (r *Registry) tryRefLocked(ctx context.Context, ref string) (Backend, string, error) {
	name, model := parseRef(ref)

	b, ok := r.backends[name]
	if !ok {
		return nil, "", aoserr.New(aoserr.CodeProviderNotFound, "provider not found: "+name, aoserr.FieldProvider(name))
	}
	if !b.Available(ctx) {
		return nil, "", aoserr.New(aoserr.CodeProviderUpstreamFailure, "provider unavailable: "+name, aoserr.FieldProvider(name))
	}
	return b, model, nil
}

// parseRef splits a "provider/model" reference on the first "/".
func parseRef(ref string) (providerName, model string) {
	name, model, _ := strings.Cut(ref, "/")
	return name, model
}

type routedBackend struct {
	registry *Registry
	ref      string
}

func (b *routedBackend) Name() string {
	if b.ref == "" {
		return "default"
	}
	return b.ref
}

func (b *routedBackend) Available(ctx context.Context) bool {
	_, _, err := b.registry.Route(ctx, b.ref, nil)
	return err == nil
}

func (b *routedBackend) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var (
		tried   []string
		lastErr error
	)
	for attempt := 0; attempt < b.registry.MaxAttempts(); attempt++ {
		backend, model, err := b.registry.Route(ctx, b.ref, tried)
		if err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		routed := req
		routed.Model = model
		resp, err := backend.Chat(ctx, routed)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		b.registry.logger.Warn("backend call failed, trying next candidate",
			"provider", backend.Name(),
			"model", model,
			"attempt", attempt+1,
			"error", err,
		)
		tried = append(tried, backend.Name())
		lastErr = err
	}
	return nil, lastErr
}

// Close is a no-op; the registry owns the backends.
func (b *routedBackend) Close() error { return nil }
