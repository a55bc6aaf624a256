// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

// Package secrets stores API keys and tool-server credentials in the OS
// keyring and resolves keyring:// references to them.
package secrets

// DefaultService is the keyring service used by the CLI when none is
// given.
const DefaultService = "agentos"

// Store provides secret storage keyed by service and key.
type Store interface {
	Set(service, key, value string) error

	// Get returns an error coded CodeSecretNotFound when the key is absent.
	Get(service, key string) (string, error)

	// Delete returns an error coded CodeSecretNotFound when the key is absent.
	Delete(service, key string) error

	// List returns the keys stored under service.
	List(service string) ([]string, error)
}
