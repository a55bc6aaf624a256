// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// AgentFile is an agent definition as exported by the builder.
type AgentFile struct {
	Name         string                       `yaml:"name"`
	Description  string                       `yaml:"description,omitempty"`
	SystemPrompt string                       `yaml:"system_prompt"`
	Model        string                       `yaml:"model,omitempty"`
	MaxTokens    int                          `yaml:"max_tokens,omitempty"`
	Guardrails   *types.GuardrailConfig       `yaml:"guardrails,omitempty"`
	ToolServers  []types.ToolServerDefinition `yaml:"tool_servers,omitempty"`
}

// LoadAgentFile reads and validates an agent definition. Relative stdio
// working directories are resolved against the file's directory.
func LoadAgentFile(path string) (*AgentFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, aoserr.Wrapf(err, aoserr.CodeConfigLoadReadFailure, "reading agent file %s", path)
	}

	af, err := ParseAgentFile(data)
	if err != nil {
		return nil, aoserr.Wrapf(err, aoserr.CodeConfigAgentFileInvalid, "agent file %s", path)
	}

	base := filepath.Dir(path)
	for i := range af.ToolServers {
		if d := af.ToolServers[i].Dir; d != "" && !filepath.IsAbs(d) {
			af.ToolServers[i].Dir = filepath.Join(base, d)
		}
	}
	return af, nil
}

// ParseAgentFile decodes an agent definition. Unknown keys are rejected.
func ParseAgentFile(data []byte) (*AgentFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var af AgentFile
	if err := dec.Decode(&af); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, aoserr.New(aoserr.CodeConfigAgentFileInvalid, "agent file is empty")
		}
		return nil, aoserr.Wrap(err, aoserr.CodeConfigAgentFileInvalid, "decoding agent file")
	}

	if errs := af.Validate(); len(errs) > 0 {
		return nil, aoserr.Wrap(errors.Join(errs...), aoserr.CodeConfigAgentFileInvalid, "validating agent file")
	}
	return &af, nil
}

// Validate checks the fields the runtime relies on. Tool server
// definitions are checked when they connect so one bad server does not
// reject the whole agent.
func (a *AgentFile) Validate() []error {
	var errs []error
	if a.Name == "" {
		errs = append(errs, aoserr.New(aoserr.CodeConfigAgentFileInvalid, "name must not be empty"))
	}
	if a.MaxTokens < 0 {
		errs = append(errs, aoserr.Errorf(aoserr.CodeConfigAgentFileInvalid, "max_tokens must not be negative, got %d", a.MaxTokens))
	}
	if g := a.Guardrails; g != nil {
		if g.ResourceLimits.MaxTurnsPerSession < 0 {
			errs = append(errs, aoserr.Errorf(aoserr.CodeConfigAgentFileInvalid,
				"guardrails.resource_limits.max_turns_per_session must not be negative, got %d", g.ResourceLimits.MaxTurnsPerSession))
		}
		if g.ResourceLimits.MaxResponseLength < 0 {
			errs = append(errs, aoserr.Errorf(aoserr.CodeConfigAgentFileInvalid,
				"guardrails.resource_limits.max_response_length must not be negative, got %d", g.ResourceLimits.MaxResponseLength))
		}
	}
	return errs
}
