// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeychainService is the service name entries are stored under.
const KeychainService = "mcporch"

// KeychainBackend stores secrets in the OS keychain: Keychain Access on
// macOS, the Secret Service on Linux, Credential Manager on Windows.
type KeychainBackend struct {
	service string
}

// NewKeychainBackend probes the keychain once and returns
// ErrBackendUnavailable when it cannot be reached, as on a headless Linux
// host without a Secret Service.
func NewKeychainBackend() (*KeychainBackend, error) {
	k := &KeychainBackend{service: KeychainService}
	if _, err := keyring.Get(k.service, "__probe__"); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("%w: keychain: %w", ErrBackendUnavailable, err)
	}
	return k, nil
}

func (k *KeychainBackend) Name() string   { return "keychain" }
func (k *KeychainBackend) Writable() bool { return true }

func (k *KeychainBackend) Get(ctx context.Context, key string) (string, error) {
	v, err := keyring.Get(k.service, key)
	if err != nil {
		return "", keychainError(key, err)
	}
	return v, nil
}

func (k *KeychainBackend) Set(ctx context.Context, key, value string) error {
	return keychainError(key, keyring.Set(k.service, key, value))
}

func (k *KeychainBackend) Delete(ctx context.Context, key string) error {
	return keychainError(key, keyring.Delete(k.service, key))
}

// lockedHints are substrings of the platform errors for a keychain that
// exists but cannot be used right now.
var lockedHints = []string{"locked", "cannot access", "permission denied", "user interaction required", "user canceled", "dbus"}

func keychainError(key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range lockedHints {
		if strings.Contains(msg, hint) {
			return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}
	}
	return fmt.Errorf("keychain: %w", err)
}
