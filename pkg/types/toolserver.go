// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package types

import (
	"strings"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

// TransportKind selects how the runtime reaches a tool server.
type TransportKind string

const (
	// TransportStdio spawns the server as a subprocess and talks over its
	// standard streams.
	TransportStdio TransportKind = "stdio"
	// TransportSSE holds a persistent event-stream HTTP connection.
	TransportSSE TransportKind = "sse"
	// TransportHTTP uses stateless request/response HTTP.
	TransportHTTP TransportKind = "http"
)

// Valid reports whether k is a supported transport.
func (k TransportKind) Valid() bool {
	switch k {
	case TransportStdio, TransportSSE, TransportHTTP:
		return true
	default:
		return false
	}
}

// ParseTransportKind parses a case-insensitive transport name. The builder's
// longer names are accepted as aliases.
func ParseTransportKind(s string) (TransportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stdio", "subprocess":
		return TransportStdio, nil
	case "sse", "event-stream", "eventstream":
		return TransportSSE, nil
	case "http", "streamable-http", "streamable":
		return TransportHTTP, nil
	}
	return "", aoserr.Errorf(aoserr.CodeToolServerDefinitionInvalid, "invalid transport kind: %q", s)
}

// UnmarshalText normalises aliases. Unknown names are kept verbatim so the
// registry can report them as connection failures.
func (k *TransportKind) UnmarshalText(b []byte) error {
	if parsed, err := ParseTransportKind(string(b)); err == nil {
		*k = parsed
		return nil
	}
	*k = TransportKind(b)
	return nil
}

// ToolServerDefinition describes one external tool server as deployed with
// an agent. Which connection fields apply depends on Transport.
type ToolServerDefinition struct {
	Name      string        `json:"name" yaml:"name"`
	Transport TransportKind `json:"transport" yaml:"transport"`

	// stdio
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Dir     string            `json:"dir,omitempty" yaml:"dir,omitempty"`

	// sse, http
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}
