// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

// Package health holds the provider health snapshot shared by the model
// registry and the runtime API.
package health

import "time"

// Metrics is a point-in-time view of one model provider. A provider that
// failed recently is unavailable until CooldownUntil passes.
type Metrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}

// CoolingDown reports whether now falls inside the cooldown window.
func (m Metrics) CoolingDown(now time.Time) bool {
	return m.CooldownUntil != nil && now.Before(*m.CooldownUntil)
}
