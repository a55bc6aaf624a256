// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/agent"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/server"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec builds a server with every route registered and returns the
// OpenAPI document huma derives from the request and response types.
func generateSpec() ([]byte, error) {
	svc, err := server.NewServices(stubMessages{}, stubTools{})
	if err != nil {
		return nil, aoserr.Wrap(err, aoserr.CodeCLISetupFailure, "creating services")
	}

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Services:   svc,
	})
	if err != nil {
		return nil, aoserr.Wrap(err, aoserr.CodeCLISetupFailure, "creating server")
	}
	defer func() { _ = srv.Close() }()

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// Handlers are never invoked during generation.

type stubMessages struct{}

func (stubMessages) ProcessMessage(context.Context, agent.ProcessRequest) (*agent.ProcessResponse, error) {
	return nil, nil
}

type stubTools struct{}

func (stubTools) Inspect(context.Context, []types.ToolServerDefinition) (*server.ToolInspection, error) {
	return nil, nil
}
