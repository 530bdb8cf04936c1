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
	"fmt"
	"os"
	"strings"
)

const envSecretPrefix = "MCPORCH_SECRET_"

var envKeyReplacer = strings.NewReplacer("/", "_", "-", "_", ".", "_")

// EnvBackend reads secrets from the process environment. It never writes.
//
//	providers/gemini/api_key -> MCPORCH_SECRET_PROVIDERS_GEMINI_API_KEY, then GEMINI_API_KEY
type EnvBackend struct {
	lookup func(string) (string, bool)
}

// NewEnvBackend reads from os.LookupEnv.
func NewEnvBackend() *EnvBackend {
	return &EnvBackend{lookup: os.LookupEnv}
}

func (e *EnvBackend) Name() string   { return "env" }
func (e *EnvBackend) Writable() bool { return false }

func (e *EnvBackend) Get(ctx context.Context, key string) (string, error) {
	for _, name := range EnvNames(key) {
		if v, ok := e.lookup(name); ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s is not set", ErrSecretNotFound, EnvNames(key)[0])
}

// Variable reads a single named variable.
func (e *EnvBackend) Variable(name string) (string, error) {
	if v, ok := e.lookup(name); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: environment variable %s not set", ErrSecretNotFound, name)
}

func (e *EnvBackend) Set(context.Context, string, string) error { return ErrReadOnlyBackend }
func (e *EnvBackend) Delete(context.Context, string) error      { return ErrReadOnlyBackend }

// EnvNames lists the variables key is looked up under, in order.
func EnvNames(key string) []string {
	names := []string{envSecretPrefix + strings.ToUpper(envKeyReplacer.Replace(key))}
	if provider, ok := strings.CutPrefix(key, "providers/"); ok {
		if provider, ok = strings.CutSuffix(provider, "/api_key"); ok && !strings.Contains(provider, "/") {
			names = append(names, strings.ToUpper(provider)+"_API_KEY")
		}
	}
	return names
}
