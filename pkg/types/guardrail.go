// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package types

// DefaultMaxTurnsPerSession applies when a guardrail config leaves the turn
// limit unset.
const DefaultMaxTurnsPerSession = 50

// GuardrailConfig is the policy data configured for an agent in the
// builder. The runtime only enforces it; it never decides the values.
type GuardrailConfig struct {
	BehavioralRules        []string       `json:"behavioral_rules,omitempty" yaml:"behavioral_rules" mapstructure:"behavioral_rules"`
	ResourceLimits         ResourceLimits `json:"resource_limits,omitempty" yaml:"resource_limits" mapstructure:"resource_limits"`
	EscalationThreshold    int            `json:"escalation_threshold,omitempty" yaml:"escalation_threshold" mapstructure:"escalation_threshold"`
	PromptInjectionDefense string         `json:"prompt_injection_defense,omitempty" yaml:"prompt_injection_defense" mapstructure:"prompt_injection_defense"`
}

type ResourceLimits struct {
	MaxTurnsPerSession int `json:"max_turns_per_session,omitempty" yaml:"max_turns_per_session" mapstructure:"max_turns_per_session"`
	MaxResponseLength  int `json:"max_response_length,omitempty" yaml:"max_response_length" mapstructure:"max_response_length"`
}

// MaxTurns returns the effective turn limit. A nil config is unrestricted
// apart from the default limit.
func (c *GuardrailConfig) MaxTurns() int {
	if c == nil || c.ResourceLimits.MaxTurnsPerSession <= 0 {
		return DefaultMaxTurnsPerSession
	}
	return c.ResourceLimits.MaxTurnsPerSession
}
