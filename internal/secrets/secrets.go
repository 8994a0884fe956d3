// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

// Package secrets stores provider credentials in the OS keyring and
// resolves keyring:// and env:// references found in configuration, so
// API keys never have to live in plaintext config files.
package secrets

// Store is a named-secret store scoped by service.
type Store interface {
	// Store saves a secret value under service/key.
	Store(service, key, value string) error
	// Retrieve returns the secret stored under service/key.
	Retrieve(service, key string) (string, error)
	// Delete removes the secret stored under service/key.
	Delete(service, key string) error
	// List returns the keys stored for a service.
	List(service string) ([]string, error)
}

// DefaultService is the keyring service conductor stores its own
// secrets under.
const DefaultService = "conductor"
