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

package llm

import (
	"log/slog"
	"strings"

	pkgerrors "github.com/tombee/mcporch/pkg/errors"
)

// Config is what a provider needs to start.
type Config struct {
	// APIKey authenticates against the provider API.
	APIKey string

	// BaseURL overrides the provider's endpoint, for proxies and
	// compatible self-hosted APIs.
	BaseURL string

	// Model overrides the provider's default model.
	Model string
}

// Validate reports a missing API key for provider.
func (c Config) Validate(provider string) error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &pkgerrors.ConfigError{
			Key:    provider + ".api_key",
			Reason: "API key is required (set " + strings.ToUpper(provider) + "_API_KEY)",
		}
	}
	return nil
}

// LogValue keeps the API key out of logs.
func (c Config) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("api_key", Redact(c.APIKey))}
	if c.BaseURL != "" {
		attrs = append(attrs, slog.String("base_url", c.BaseURL))
	}
	if c.Model != "" {
		attrs = append(attrs, slog.String("model", c.Model))
	}
	return slog.GroupValue(attrs...)
}

// Redact hides all but the last four characters of a key. Keys of eight
// characters or fewer are hidden entirely.
func Redact(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return "****" + key[len(key)-4:]
}
