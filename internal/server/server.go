// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

// Package server exposes the runtime over HTTP: synchronous and streamed
// message processing, tool server inspection, provider health and the run
// audit log.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/agent"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

// Version is reported in the OpenAPI document.
var Version = "dev"

const defaultStreamBuffer = 16

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr  string
	CORSOrigins []string
	ReadTimeout time.Duration

	// WriteTimeout bounds a whole response, streams included. Zero leaves
	// it unbounded, which suits turns with long tool rounds.
	WriteTimeout time.Duration

	RateLimit RateLimitConfig

	// StreamBuffer is the event channel size of a streamed turn.
	StreamBuffer int

	// MaxConcurrentStreams caps open streams. Zero means unlimited.
	MaxConcurrentStreams int

	Services *Services
	Logger   *slog.Logger
}

// Server wraps a chi router with a huma API and an HTTP server.
type Server struct {
	router   chi.Router
	api      huma.API
	cfg      Config
	services *Services
	logger   *slog.Logger

	lanes   *agent.LanePool
	streams chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Server with health, CORS, per-IP rate limiting on
// /api/v1 and every runtime route.
func New(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, aoserr.New(aoserr.CodeServerConfigInvalid, "listen address is required")
	}
	if cfg.Services == nil {
		return nil, aoserr.New(aoserr.CodeServerConfigInvalid, "services are required")
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, err
	}
	if cfg.StreamBuffer < 0 || cfg.MaxConcurrentStreams < 0 {
		return nil, aoserr.Errorf(aoserr.CodeServerConfigInvalid,
			"stream buffer and max concurrent streams must not be negative (got %d, %d)",
			cfg.StreamBuffer, cfg.MaxConcurrentStreams)
	}
	if cfg.StreamBuffer == 0 {
		cfg.StreamBuffer = defaultStreamBuffer
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		services: cfg.Services,
		logger:   cfg.Logger,
		lanes:    agent.NewLanePool(),
		done:     make(chan struct{}),
	}
	if cfg.MaxConcurrentStreams > 0 {
		s.streams = make(chan struct{}, cfg.MaxConcurrentStreams)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(apiOnly(rateLimitMiddleware(cfg.RateLimit, s.done)))

	humaConfig := huma.DefaultConfig("Agent OS Runtime", Version)
	humaConfig.Info.Description = "Runs deployed agents: guardrails, MCP tool servers and the tool-use loop."
	api := humachi.New(r, humaConfig)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		return &HealthResponse{Body: HealthBody{Status: "ok"}}, nil
	})

	s.router = r
	s.api = api
	s.registerRoutes()
	go s.sweepLanes()

	return s, nil
}

const (
	laneIdleAfter  = 15 * time.Minute
	laneSweepEvery = time.Minute
)

// sweepLanes evicts idle session lanes until the server closes.
func (s *Server) sweepLanes() {
	ticker := time.NewTicker(laneSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.lanes.Sweep(laneIdleAfter); n > 0 {
				s.logger.Debug("evicted idle session lanes", "count", n)
			}
		case <-s.done:
			return
		}
	}
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return aoserr.Wrapf(err, aoserr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		s.Close()
		return aoserr.Wrap(err, aoserr.CodeServerStartFailure, "serving http")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.Close()
		return aoserr.Wrap(err, aoserr.CodeServerShutdownFailure, "shutting down")
	}
	s.Close()
	return <-errCh
}

// Close stops background goroutines and waits for queued session turns.
// It is idempotent.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.lanes.Close()
	})
	return nil
}

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

type HealthResponse struct {
	Body HealthBody
}

// apiOnly applies mw to /api/ paths and leaves the rest (health, OpenAPI
// docs) untouched.
func apiOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
