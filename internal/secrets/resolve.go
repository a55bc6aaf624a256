// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package secrets

import (
	"sort"
	"strings"

	"github.com/spf13/viper"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

const scheme = "keyring://"

// Reference names a secret as keyring://service/key.
type Reference struct {
	Service string
	Key     string
}

func (r Reference) String() string {
	return scheme + r.Service + "/" + r.Key
}

// IsReference reports whether value uses the keyring:// scheme.
func IsReference(value string) bool {
	return strings.HasPrefix(value, scheme)
}

// ParseReference parses keyring://service/key. The key may itself contain
// slashes.
func ParseReference(uri string) (Reference, error) {
	if !IsReference(uri) {
		return Reference{}, aoserr.Errorf(aoserr.CodeSecretReferenceInvalid, "not a keyring reference: %q", uri)
	}
	service, key, ok := strings.Cut(strings.TrimPrefix(uri, scheme), "/")
	if !ok || service == "" || key == "" {
		return Reference{}, aoserr.Errorf(aoserr.CodeSecretReferenceInvalid,
			"invalid keyring reference %q: expected keyring://service/key", uri)
	}
	return Reference{Service: service, Key: key}, nil
}

// Resolver turns keyring references into secret values. Other values pass
// through unchanged.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Resolve(value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	ref, err := ParseReference(value)
	if err != nil {
		return "", err
	}
	secret, err := r.store.Get(ref.Service, ref.Key)
	if err != nil {
		return "", aoserr.Wrapf(err, aoserr.CodeSecretStoreFailure, "resolving %s", value)
	}
	return secret, nil
}

// ResolveViper replaces every keyring reference among v's string values
// with the secret it names. Unresolvable references are left in place and
// reported together in the returned error.
func ResolveViper(v *viper.Viper, r *Resolver) error {
	var failed []string
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if !ok || !IsReference(val) {
			continue
		}
		resolved, err := r.Resolve(val)
		if err != nil {
			failed = append(failed, key+" ("+val+")")
			continue
		}
		v.Set(key, resolved)
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		return aoserr.Errorf(aoserr.CodeSecretNotFound, "unresolved secret references: %s", strings.Join(failed, ", "))
	}
	return nil
}
