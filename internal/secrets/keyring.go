// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/zalando/go-keyring"

	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// indexKey is the reserved keyring entry that tracks stored key names
// per service. OS keyrings cannot enumerate entries, so List depends on
// this index.
const indexKey = "::keys-index"

// Compile-time interface check.
var _ Store = (*KeyringStore)(nil)

// KeyringStore persists secrets in the operating system keyring.
type KeyringStore struct {
	mu sync.Mutex // serialises index read-modify-write
}

// NewKeyringStore creates a Store backed by the OS keyring.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := validateName(service, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := keyring.Set(service, key, value); err != nil {
		return conderr.Wrapf(err, conderr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return s.updateIndex(service, key, true)
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := validateName(service, key); err != nil {
		return "", err
	}

	value, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", conderr.Errorf(conderr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return "", conderr.Wrapf(err, conderr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return value, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := validateName(service, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return conderr.Errorf(conderr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return conderr.Wrapf(err, conderr.CodeSecretStoreFailure, "deleting secret %s/%s", service, key)
	}
	return s.updateIndex(service, key, false)
}

func (s *KeyringStore) List(service string) ([]string, error) {
	if service == "" {
		return nil, conderr.New(conderr.CodeSecretInvalidInput, "service is required")
	}

	keys, err := s.readIndex(service)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *KeyringStore) readIndex(service string) ([]string, error) {
	raw, err := keyring.Get(service, indexKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, conderr.Wrapf(err, conderr.CodeSecretStoreFailure, "reading key index for %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, conderr.Wrapf(err, conderr.CodeSecretStoreFailure, "decoding key index for %s", service)
	}
	return keys, nil
}

// updateIndex adds or removes a key in the service index. Callers must
// hold s.mu.
func (s *KeyringStore) updateIndex(service, key string, add bool) error {
	keys, err := s.readIndex(service)
	if err != nil {
		return err
	}

	updated := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		if k != key {
			updated = append(updated, k)
		}
	}
	if add {
		updated = append(updated, key)
	}

	raw, err := json.Marshal(updated)
	if err != nil {
		return conderr.Wrapf(err, conderr.CodeSecretStoreFailure, "encoding key index for %s", service)
	}
	if err := keyring.Set(service, indexKey, string(raw)); err != nil {
		return conderr.Wrapf(err, conderr.CodeSecretStoreFailure, "writing key index for %s", service)
	}
	return nil
}

func validateName(service, key string) error {
	if service == "" {
		return conderr.New(conderr.CodeSecretInvalidInput, "service is required")
	}
	if key == "" {
		return conderr.New(conderr.CodeSecretInvalidInput, "key is required")
	}
	if key == indexKey {
		return conderr.Errorf(conderr.CodeSecretInvalidInput, "key %q is reserved", indexKey)
	}
	return nil
}
