// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package secrets

import (
	"os"
	"strings"

	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

const (
	keyringScheme = "keyring://"
	envScheme     = "env://"
)

// IsReference reports whether a config value is a secret reference
// rather than a literal.
func IsReference(value string) bool {
	return strings.HasPrefix(value, keyringScheme) || strings.HasPrefix(value, envScheme)
}

// ParseKeyringRef splits a keyring://service/key reference into its
// service and key parts.
func ParseKeyringRef(ref string) (service, key string, err error) {
	rest, ok := strings.CutPrefix(ref, keyringScheme)
	if !ok {
		return "", "", conderr.Errorf(conderr.CodeSecretInvalidInput, "not a keyring reference: %s", ref)
	}

	service, key, ok = strings.Cut(rest, "/")
	if !ok || service == "" || key == "" {
		return "", "", conderr.Errorf(conderr.CodeSecretInvalidInput,
			"keyring reference must be keyring://service/key, got %s", ref)
	}
	return service, key, nil
}

// Resolve returns the secret a config value refers to. Values with a
// keyring:// prefix are looked up in the store, env:// values in the
// process environment, and anything else is returned as-is.
func Resolve(store Store, value string) (string, error) {
	switch {
	case strings.HasPrefix(value, keyringScheme):
		service, key, err := ParseKeyringRef(value)
		if err != nil {
			return "", err
		}
		secret, err := store.Retrieve(service, key)
		if err != nil {
			return "", conderr.Wrapf(err, conderr.CodeSecretResolveFailure, "resolving %s", value)
		}
		return secret, nil

	case strings.HasPrefix(value, envScheme):
		name := strings.TrimPrefix(value, envScheme)
		if name == "" {
			return "", conderr.New(conderr.CodeSecretInvalidInput, "env reference must name a variable")
		}
		secret, ok := os.LookupEnv(name)
		if !ok {
			return "", conderr.Errorf(conderr.CodeSecretResolveFailure,
				"environment variable %s referenced by config is not set", name)
		}
		return secret, nil

	default:
		return value, nil
	}
}
