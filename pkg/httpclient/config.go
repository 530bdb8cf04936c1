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

package httpclient

import (
	"fmt"
	"log/slog"
	"time"
)

// Config configures the client built by New.
type Config struct {
	// Timeout bounds a whole exchange including the body. Zero leaves
	// bounding to context deadlines, which streaming SSE reads need.
	Timeout time.Duration

	ResponseHeaderTimeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	RetryAttempts int
	RetryBackoff  time.Duration
	MaxBackoff    time.Duration

	// AllowNonIdempotentRetry lets POST, PUT, PATCH and DELETE be retried.
	AllowNonIdempotentRetry bool

	UserAgent string

	// OAuth, when set, authenticates every request with a client
	// credentials token.
	OAuth *OAuth

	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:               30 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		RetryAttempts:         3,
		RetryBackoff:          100 * time.Millisecond,
		MaxBackoff:            10 * time.Second,
		UserAgent:             "mcporch/1.0",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch {
	case c.Timeout < 0:
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	case c.ResponseHeaderTimeout < 0:
		return fmt.Errorf("response_header_timeout must be >= 0, got %v", c.ResponseHeaderTimeout)
	case c.RetryAttempts < 0:
		return fmt.Errorf("retry_attempts must be >= 0, got %d", c.RetryAttempts)
	case c.RetryAttempts > 0 && c.RetryBackoff <= 0:
		return fmt.Errorf("retry_backoff must be > 0 when retry_attempts > 0, got %v", c.RetryBackoff)
	case c.RetryAttempts > 0 && c.MaxBackoff < c.RetryBackoff:
		return fmt.Errorf("max_backoff (%v) must be >= retry_backoff (%v)", c.MaxBackoff, c.RetryBackoff)
	case c.UserAgent == "":
		return fmt.Errorf("user_agent is required and must be non-empty")
	}
	if c.OAuth != nil {
		return c.OAuth.Validate()
	}
	return nil
}
