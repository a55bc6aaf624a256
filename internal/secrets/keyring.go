// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/zalando/go-keyring"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

// go-keyring cannot enumerate keys, so each service keeps a JSON index of
// its key names under this suffix.
const indexSuffix = "::index"

var _ Store = (*KeyringStore)(nil)

// KeyringStore implements Store on the OS keyring: Keychain on macOS,
// secret-service on Linux, Credential Manager on Windows.
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func checkName(op, service, key string) error {
	if service == "" || key == "" {
		return aoserr.Errorf(aoserr.CodeSecretReferenceInvalid, "secret %s: service and key must not be empty", op)
	}
	return nil
}

func (s *KeyringStore) Set(service, key, value string) error {
	if err := checkName("set", service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return aoserr.Wrapf(err, aoserr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return s.updateIndex(service, func(keys []string) []string {
		if slices.Contains(keys, key) {
			return keys
		}
		return append(keys, key)
	})
}

func (s *KeyringStore) Get(service, key string) (string, error) {
	if err := checkName("get", service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", aoserr.Errorf(aoserr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return "", aoserr.Wrapf(err, aoserr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkName("delete", service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return aoserr.Errorf(aoserr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return aoserr.Wrapf(err, aoserr.CodeSecretStoreFailure, "deleting secret %s/%s", service, key)
	}
	return s.updateIndex(service, func(keys []string) []string {
		return slices.DeleteFunc(keys, func(k string) bool { return k == key })
	})
}

func (s *KeyringStore) List(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+indexSuffix)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, aoserr.Wrapf(err, aoserr.CodeSecretStoreFailure, "loading key index for %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, aoserr.Wrapf(err, aoserr.CodeSecretStoreFailure, "decoding key index for %s", service)
	}
	return keys, nil
}

func (s *KeyringStore) updateIndex(service string, fn func([]string) []string) error {
	keys, err := s.List(service)
	if err != nil {
		return err
	}
	keys = fn(keys)

	indexKey := service + indexSuffix
	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty key index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return aoserr.Wrapf(err, aoserr.CodeSecretStoreFailure, "encoding key index for %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return aoserr.Wrapf(err, aoserr.CodeSecretStoreFailure, "saving key index for %s", service)
	}
	return nil
}
