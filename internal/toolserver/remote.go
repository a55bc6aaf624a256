// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package toolserver

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// SSEConnection talks to a server over the legacy server-sent-events
// transport.
type SSEConnection struct {
	*session
}

// HTTPConnection talks to a server over the streamable HTTP transport.
type HTTPConnection struct {
	*session
}

// NewSSEConnection validates def and returns an unconnected connection.
func NewSSEConnection(def types.ToolServerDefinition, logger *slog.Logger) (*SSEConnection, error) {
	client, err := remoteClient(def)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEConnection{session: newSession(def.Name, types.TransportSSE, func() (mcp.Transport, error) {
		return &mcp.SSEClientTransport{Endpoint: def.URL, HTTPClient: client}, nil
	}, logger)}, nil
}

// NewHTTPConnection validates def and returns an unconnected connection.
func NewHTTPConnection(def types.ToolServerDefinition, logger *slog.Logger) (*HTTPConnection, error) {
	client, err := remoteClient(def)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPConnection{session: newSession(def.Name, types.TransportHTTP, func() (mcp.Transport, error) {
		return &mcp.StreamableClientTransport{Endpoint: def.URL, HTTPClient: client}, nil
	}, logger)}, nil
}

func remoteClient(def types.ToolServerDefinition) (*http.Client, error) {
	if def.URL == "" {
		return nil, aoserr.New(aoserr.CodeToolServerDefinitionInvalid,
			string(def.Transport)+" tool server requires a url", aoserr.FieldServer(def.Name))
	}
	u, err := url.Parse(def.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, aoserr.New(aoserr.CodeToolServerDefinitionInvalid,
			"invalid tool server url "+def.URL, aoserr.FieldServer(def.Name))
	}
	return &http.Client{Transport: &headerTransport{headers: def.Headers, base: http.DefaultTransport}}, nil
}

// headerTransport adds the configured static headers and the caller's
// trace context to every outgoing request.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
	return t.base.RoundTrip(req)
}
