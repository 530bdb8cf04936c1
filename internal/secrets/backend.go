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

// Package secrets resolves oracle provider credentials without keeping them
// in the config file.
//
// A Resolver consults its backends in order, first hit wins:
//
//	env      - MCPORCH_SECRET_<KEY> or the provider's own variable (GEMINI_API_KEY)
//	keychain - OS keychain under the "mcporch" service
//
// Config values may also reference a secret explicitly:
//
//	api_key: env:GEMINI_API_KEY
//	api_key: keychain:providers/gemini/api_key
//	api_key: ${GEMINI_API_KEY}
package secrets

import (
	"context"
	"errors"
)

var (
	ErrSecretNotFound     = errors.New("secret not found")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrReadOnlyBackend    = errors.New("backend is read-only")
)

// Backend is one place secrets can live. Get returns ErrSecretNotFound for a
// missing key; Set and Delete return ErrReadOnlyBackend when Writable is
// false.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Writable() bool
}

// ProviderKey is the secret key holding a provider's API key.
func ProviderKey(provider string) string {
	return "providers/" + provider + "/api_key"
}
