// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultToolTimeout    = 60 * time.Second
)

// Connector builds a connection for a definition. NewConnection is the
// default.
type Connector func(def types.ToolServerDefinition, logger *slog.Logger) (Connection, error)

// SecretResolver turns a configured value into its usable form. Values
// that are not secret references pass through unchanged. Without a
// resolver, env and header values are used verbatim.
type SecretResolver interface {
	Resolve(value string) (string, error)
}

// ConnectFailure records a server that could not be brought up.
type ConnectFailure struct {
	Server string `json:"server"`
	Err    error  `json:"-"`
}

// MarshalJSON includes the error text.
func (f ConnectFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Server string `json:"server"`
		Error  string `json:"error"`
	}{f.Server, msg})
}

// Option configures a Registry.
type Option func(*Registry)

func WithConnector(c Connector) Option {
	return func(r *Registry) { r.connector = c }
}

func WithSecretResolver(s SecretResolver) Option {
	return func(r *Registry) { r.secrets = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.connectTimeout = d
		}
	}
}

// WithDeniedTransports makes the registry refuse definitions using any of
// kinds. Refused servers are reported in Failures.
func WithDeniedTransports(kinds ...types.TransportKind) Option {
	return func(r *Registry) {
		for _, k := range kinds {
			r.denied[k] = true
		}
	}
}

// WithToolTimeout bounds each individual invocation.
func WithToolTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.toolTimeout = d
		}
	}
}

type entry struct {
	conn    Connection
	tools   []Tool
	schemas map[string]*jsonschema.Schema
}

// Registry owns the connections of one run and exposes their tools under
// server-prefixed names. It is not reused across runs.
type Registry struct {
	connector      Connector
	secrets        SecretResolver
	logger         *slog.Logger
	connectTimeout time.Duration
	toolTimeout    time.Duration
	telemetry      instruments
	denied         map[types.TransportKind]bool

	mu       sync.RWMutex
	order    []string
	servers  map[string]*entry
	failures []ConnectFailure
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		connector:      func(def types.ToolServerDefinition, l *slog.Logger) (Connection, error) { return NewConnection(def, l) },
		logger:         slog.Default(),
		connectTimeout: DefaultConnectTimeout,
		toolTimeout:    DefaultToolTimeout,
		servers:        make(map[string]*entry),
		denied:         make(map[types.TransportKind]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.telemetry = newInstruments()
	return r
}

// ConnectAll connects every definition concurrently. A server that fails
// is recorded in Failures and contributes no tools; the others are
// unaffected.
func (r *Registry) ConnectAll(ctx context.Context, defs []types.ToolServerDefinition) {
	results := make([]*entry, len(defs))
	errs := make([]error, len(defs))

	seen := make(map[string]bool, len(defs))
	var g errgroup.Group
	for i, def := range defs {
		if err := r.checkName(def.Name, seen); err != nil {
			errs[i] = err
			continue
		}
		g.Go(func() error {
			results[i], errs[i] = r.connectOne(ctx, def)
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, def := range defs {
		if errs[i] != nil {
			r.logger.Warn("tool server unavailable", "server", def.Name, "error", errs[i])
			r.failures = append(r.failures, ConnectFailure{Server: def.Name, Err: errs[i]})
			continue
		}
		r.order = append(r.order, def.Name)
		r.servers[def.Name] = results[i]
	}
}

func (r *Registry) checkName(name string, seen map[string]bool) error {
	r.mu.RLock()
	_, exists := r.servers[name]
	r.mu.RUnlock()

	switch {
	case name == "":
		return aoserr.New(aoserr.CodeToolServerConnectFailure, "tool server name is empty")
	case strings.Contains(name, Separator):
		return aoserr.New(aoserr.CodeToolServerConnectFailure,
			fmt.Sprintf("tool server name must not contain %q", Separator), aoserr.FieldServer(name))
	case seen[name] || exists:
		return aoserr.New(aoserr.CodeToolServerConnectFailure, "duplicate tool server name", aoserr.FieldServer(name))
	}
	seen[name] = true
	return nil
}

func (r *Registry) connectOne(ctx context.Context, def types.ToolServerDefinition) (*entry, error) {
	if !def.Transport.Valid() {
		return nil, aoserr.New(aoserr.CodeToolServerConnectFailure,
			"unknown transport "+string(def.Transport), aoserr.FieldServer(def.Name))
	}
	if r.denied[def.Transport] {
		return nil, aoserr.New(aoserr.CodeToolServerTransportDenied,
			string(def.Transport)+" tool servers are not allowed here", aoserr.FieldServer(def.Name))
	}

	def, err := r.resolveSecrets(def)
	if err != nil {
		return nil, aoserr.Wrap(err, aoserr.CodeToolServerConnectFailure, "resolving secrets", aoserr.FieldServer(def.Name))
	}

	conn, err := r.connector(def, r.logger)
	if err != nil {
		return nil, aoserr.Wrap(err, aoserr.CodeToolServerConnectFailure, "building connection", aoserr.FieldServer(def.Name))
	}

	ctx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		_ = conn.Disconnect()
		return nil, err
	}

	tools, err := conn.ListTools(ctx)
	if err != nil {
		_ = conn.Disconnect()
		return nil, aoserr.Wrap(err, aoserr.CodeToolServerConnectFailure, "listing tools", aoserr.FieldServer(def.Name))
	}

	e := &entry{conn: conn, tools: tools, schemas: make(map[string]*jsonschema.Schema, len(tools))}
	for _, t := range tools {
		schema, err := compileSchema(t.InputSchema)
		if err != nil {
			r.logger.Warn("ignoring uncompilable input schema", "server", def.Name, "tool", t.Name, "error", err)
			continue
		}
		e.schemas[t.Name] = schema
	}

	r.logger.Info("tool server connected", "server", def.Name, "tools", len(tools))
	return e, nil
}

func (r *Registry) resolveSecrets(def types.ToolServerDefinition) (types.ToolServerDefinition, error) {
	if r.secrets == nil {
		return def, nil
	}
	resolve := func(in map[string]string) (map[string]string, error) {
		if len(in) == 0 {
			return in, nil
		}
		out := make(map[string]string, len(in))
		for k, v := range in {
			resolved, err := r.secrets.Resolve(v)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	}

	var err error
	if def.Env, err = resolve(def.Env); err != nil {
		return def, err
	}
	if def.Headers, err = resolve(def.Headers); err != nil {
		return def, err
	}
	return def, nil
}

// Catalog lists every tool of every connected server under its prefixed
// name. Servers follow definition order and tools follow advertisement
// order.
func (r *Registry) Catalog() []provider.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []provider.ToolDefinition
	for _, name := range r.order {
		for _, t := range r.servers[name].tools {
			out = append(out, provider.ToolDefinition{
				Name:        Namespace(name, t.Name),
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
	}
	return out
}

// Servers returns the names of the connected servers.
func (r *Registry) Servers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Failures returns the servers that could not be connected.
func (r *Registry) Failures() []ConnectFailure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ConnectFailure(nil), r.failures...)
}

// Execute routes one tool call and reports its outcome. It never fails;
// problems are reported as error records.
func (r *Registry) Execute(ctx context.Context, call types.ToolCall) types.ToolUseRecord {
	serverName, toolName := ParseName(call.PrefixedName)
	if call.ServerName != "" {
		serverName = call.ServerName
	}

	ctx, span := r.telemetry.tracer.Start(ctx, "toolserver.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("server", serverName),
			attribute.String("tool", toolName),
			attribute.String("tool_call_id", call.ID),
		))
	defer span.End()

	start := time.Now()
	rec := types.ToolUseRecord{
		ToolCallID: call.ID,
		ToolName:   toolName,
		ServerName: serverName,
		Input:      call.Input,
	}

	res := r.invoke(ctx, serverName, toolName, call.Input)
	elapsed := time.Since(start)

	rec.Output = res.Output
	rec.IsError = res.IsError
	rec.DurationMs = elapsed.Milliseconds()

	if res.IsError {
		span.SetStatus(codes.Error, res.Output)
	}
	r.telemetry.record(ctx, serverName, toolName, res.IsError, elapsed)
	r.logger.Debug("tool executed",
		"server", serverName,
		"tool", toolName,
		"tool_call_id", call.ID,
		"duration_ms", rec.DurationMs,
		"is_error", rec.IsError,
	)
	return rec
}

func (r *Registry) invoke(ctx context.Context, serverName, toolName string, input json.RawMessage) Result {
	r.mu.RLock()
	e, ok := r.servers[serverName]
	r.mu.RUnlock()
	if !ok {
		return Result{IsError: true, Output: fmt.Sprintf("Tool server %q is not connected", serverName)}
	}

	if schema, ok := e.schemas[toolName]; ok {
		if err := validateInput(schema, input); err != nil {
			return Result{IsError: true, Output: fmt.Sprintf("Invalid input for tool %q: %v", toolName, err)}
		}
	}

	return e.conn.Invoke(ctx, toolName, input, r.toolTimeout)
}

// DisconnectAll closes every connection. Later calls do nothing.
func (r *Registry) DisconnectAll() error {
	r.mu.Lock()
	servers := r.servers
	order := r.order
	r.servers = make(map[string]*entry)
	r.order = nil
	r.mu.Unlock()

	var errs []error
	for _, name := range order {
		if err := servers[name].conn.Disconnect(); err != nil {
			r.logger.Warn("tool server disconnect failed", "server", name, "error", err)
			errs = append(errs, err)
		}
	}
	return aoserr.Join(errs...)
}
