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
	"regexp"
	"strings"
)

// Resolver looks secrets up across backends in the order they were given.
type Resolver struct {
	backends []Backend
}

// NewResolver chains backends, first consulted first. Nil backends are
// skipped.
func NewResolver(backends ...Backend) *Resolver {
	r := &Resolver{}
	for _, b := range backends {
		if b != nil {
			r.backends = append(r.backends, b)
		}
	}
	return r
}

// DefaultResolver puts the environment in front of the OS keychain. The
// keychain is left out when it cannot be reached.
func DefaultResolver() *Resolver {
	r := NewResolver(NewEnvBackend())
	if kc, err := NewKeychainBackend(); err == nil {
		r.backends = append(r.backends, kc)
	}
	return r
}

// Backends returns the chain in lookup order.
func (r *Resolver) Backends() []Backend {
	return r.backends
}

func (r *Resolver) backend(name string) Backend {
	for _, b := range r.backends {
		if b.Name() == name {
			return b
		}
	}
	return nil
}

// Get returns the first value a backend holds for key. A backend failing
// for a reason other than a missing key is reported only if no later
// backend has the value.
func (r *Resolver) Get(ctx context.Context, key string) (string, error) {
	if len(r.backends) == 0 {
		return "", fmt.Errorf("%w: no backends configured", ErrBackendUnavailable)
	}

	var failure error
	for _, b := range r.backends {
		v, err := b.Get(ctx, key)
		switch {
		case err == nil:
			return v, nil
		case !errors.Is(err, ErrSecretNotFound) && failure == nil:
			failure = fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	if failure != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", key, failure)
	}
	return "", fmt.Errorf("%w: %q", ErrSecretNotFound, key)
}

// Set stores key in the named backend, or in the first writable backend
// when name is empty.
func (r *Resolver) Set(ctx context.Context, key, value, name string) error {
	b, err := r.target(name)
	if err != nil {
		return err
	}
	if err := b.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to set secret in %s: %w", b.Name(), err)
	}
	return nil
}

// Delete removes key from the named backend, or from the first writable
// backend when name is empty.
func (r *Resolver) Delete(ctx context.Context, key, name string) error {
	b, err := r.target(name)
	if err != nil {
		return err
	}
	if err := b.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete secret from %s: %w", b.Name(), err)
	}
	return nil
}

func (r *Resolver) target(name string) (Backend, error) {
	if name != "" {
		if b := r.backend(name); b != nil {
			return b, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrBackendUnavailable, name)
	}
	for _, b := range r.backends {
		if b.Writable() {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: no writable backend", ErrReadOnlyBackend)
}

var referencePattern = regexp.MustCompile(`^(?:\$\{([A-Za-z_][A-Za-z0-9_]*)\}|(env|keychain|secret):(.*))$`)

// IsReference reports whether value names a secret rather than holding one.
func IsReference(value string) bool {
	return referencePattern.MatchString(value)
}

// Expand resolves a secret reference. Anything else is returned as is.
//
//	env:NAME      environment variable NAME
//	${NAME}       same as env:NAME
//	keychain:KEY  keychain entry KEY
//	secret:KEY    KEY through the whole chain
func (r *Resolver) Expand(ctx context.Context, value string) (string, error) {
	m := referencePattern.FindStringSubmatch(value)
	if m == nil {
		return value, nil
	}
	scheme, key := m[2], m[3]
	if m[1] != "" {
		scheme, key = "env", m[1]
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("invalid secret reference %q: empty key", value)
	}

	switch scheme {
	case "env":
		env, ok := r.backend("env").(*EnvBackend)
		if !ok {
			env = NewEnvBackend()
		}
		return env.Variable(key)
	case "keychain":
		b := r.backend("keychain")
		if b == nil {
			return "", fmt.Errorf("%w: keychain", ErrBackendUnavailable)
		}
		return b.Get(ctx, key)
	default:
		return r.Get(ctx, key)
	}
}
