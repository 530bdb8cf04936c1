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

// Package errors holds the error types shared by mcporch packages. Domain
// failures of the MCP client live in internal/mcp; these cover input,
// lookup, configuration, provider and timeout failures.
package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ValidationError is bad input: a malformed URL, an unparseable plan, a
// missing argument.
type ValidationError struct {
	Field      string
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NotFoundError is a lookup miss for a server, tool or provider.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found: " + e.ID
}

// ConfigError points at a configuration key that cannot be used.
type ConfigError struct {
	Key    string
	Reason string
	Cause  error
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "config error: " + e.Reason
	}
	return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// ProviderError is a failed call to the model provider behind the planning
// oracle.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Suggestion string

	// RequestID is the X-Request-ID sent with the call, for matching
	// provider-side logs.
	RequestID string
	Cause     error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("provider ")
	b.WriteString(e.Provider)
	b.WriteString(" error")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " [HTTP %d]", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request-id: %s)", e.RequestID)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Cause }

func (e *ProviderError) ErrorType() string { return "provider" }

// IsRetryable is true for 5xx and 429 responses.
func (e *ProviderError) IsRetryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// TimeoutError is an operation that ran past its deadline.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
	Cause     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

func (e *TimeoutError) ErrorType() string { return "timeout" }

func (e *TimeoutError) IsRetryable() bool { return true }
