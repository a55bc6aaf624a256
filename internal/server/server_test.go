// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package server_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/server"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	svc, err := server.NewServices(&fakeProcessor{}, &fakeInspector{})
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  server.Config
	}{
		{name: "no listen address", cfg: server.Config{Services: svc}},
		{name: "no services", cfg: server.Config{ListenAddr: "127.0.0.1:0"}},
		{name: "negative rate", cfg: server.Config{ListenAddr: "127.0.0.1:0", Services: svc, RateLimit: server.RateLimitConfig{RequestsPerSecond: -1}}},
		{name: "negative stream buffer", cfg: server.Config{ListenAddr: "127.0.0.1:0", Services: svc, StreamBuffer: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := server.New(tt.cfg)
			require.Error(t, err)
			assert.True(t, aoserr.HasCode(err, aoserr.CodeServerConfigInvalid))
		})
	}
}

func TestNewServices_RequiresProcessorAndInspector(t *testing.T) {
	_, err := server.NewServices(nil, &fakeInspector{})
	assert.Error(t, err)
	_, err = server.NewServices(&fakeProcessor{}, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestOpenAPIDocumentsStreamRoute(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/runtime/messages/stream")
	assert.Contains(t, w.Body.String(), "/api/v1/tool-servers/inspect")
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, nil, func(c *server.Config, _ *server.Services) {
		c.CORSOrigins = []string{"https://builder.example.com"}
	})

	w := doJSON(t, srv, http.MethodOptions, "/api/v1/runtime/messages", nil,
		"Origin", "https://builder.example.com",
		"Access-Control-Request-Method", "POST",
	)
	assert.Equal(t, "https://builder.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	srv := newTestServer(t, nil, withRateLimit(0.001, 1), withServices(func(s *server.Services) {
		s.SetProviders(fakeProviders{})
	}))

	assert.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/api/v1/providers/health", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, doJSON(t, srv, http.MethodGet, "/api/v1/providers/health", nil).Code)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/health", nil).Code)
	}
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	srv := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.NoError(t, srv.Close(), "close after shutdown is a no-op")
}

func TestStart_ListenFailure(t *testing.T) {
	svc, err := server.NewServices(&fakeProcessor{}, &fakeInspector{})
	require.NoError(t, err)
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:99999", Services: svc})
	require.NoError(t, err)

	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.True(t, aoserr.HasCode(err, aoserr.CodeServerStartFailure))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "backend failure", err: aoserr.Wrap(errors.New("boom"), aoserr.CodeAgentBackendFailure, "chat"), want: http.StatusBadGateway},
		{name: "malformed backend reply", err: aoserr.New(aoserr.CodeAgentBackendMalformed, "nil"), want: http.StatusBadGateway},
		{name: "invalid input", err: aoserr.New(aoserr.CodeAgentLoopInvalidInput, "empty"), want: http.StatusBadRequest},
		{name: "lane closed", err: aoserr.New(aoserr.CodeAgentLaneClosed, "closed"), want: http.StatusServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{name: "cancelled", err: context.Canceled, want: 499},
		{name: "plain error", err: errors.New("x"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, server.StatusOf(tt.err))
		})
	}
}
