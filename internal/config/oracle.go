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

package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/tombee/mcporch/internal/secrets"
	pkgerrors "github.com/tombee/mcporch/pkg/errors"
	"github.com/tombee/mcporch/pkg/llm"
)

// OracleCredentials resolves the API key for the configured oracle
// provider. An explicit oracle.api_key may be a secret reference; otherwise
// providers/<provider>/api_key is looked up through res.
//
// It returns ok=false without error when the provider is none or no key
// can be found, so callers can run without an oracle.
func (c *Config) OracleCredentials(ctx context.Context, res *secrets.Resolver) (creds llm.Config, ok bool, err error) {
	if c.Oracle.Provider == ProviderNone {
		return llm.Config{}, false, nil
	}

	var key string
	if c.Oracle.APIKey != "" {
		key, err = res.Expand(ctx, c.Oracle.APIKey)
		if err != nil {
			return llm.Config{}, false, &pkgerrors.ConfigError{
				Key:    "oracle.api_key",
				Reason: "failed to resolve secret reference",
				Cause:  err,
			}
		}
	} else {
		key, err = res.Get(ctx, secrets.ProviderKey(c.Oracle.Provider))
		switch {
		case errors.Is(err, secrets.ErrSecretNotFound), errors.Is(err, secrets.ErrBackendUnavailable):
			return llm.Config{}, false, nil
		case err != nil:
			return llm.Config{}, false, &pkgerrors.ConfigError{
				Key:    "oracle.api_key",
				Reason: fmt.Sprintf("failed to look up %s credentials", c.Oracle.Provider),
				Cause:  err,
			}
		}
	}
	if key == "" {
		return llm.Config{}, false, nil
	}

	return llm.Config{
		APIKey:  key,
		BaseURL: c.Oracle.BaseURL,
		Model:   c.Oracle.Model,
	}, true, nil
}
