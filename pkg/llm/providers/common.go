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

// Package providers implements llm.Provider for Gemini, Anthropic and
// OpenAI-compatible APIs.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/mcporch/pkg/errors"
	"github.com/tombee/mcporch/pkg/httpclient"
	"github.com/tombee/mcporch/pkg/llm"
)

// maxResponseBody bounds how much of a provider response is read.
const maxResponseBody = 8 << 20

// newHTTPClient builds the shared client for a provider. Retries are left to
// llm.Retrying, which understands provider errors.
func newHTTPClient(userAgent string) (*http.Client, error) {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 120 * time.Second
	cfg.UserAgent = userAgent
	cfg.RetryAttempts = 0

	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	return client, nil
}

// endpoint is what every provider needs to reach its API.
type endpoint struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// newEndpoint validates creds and fills in the vendor defaults.
func newEndpoint(name, baseURL, model string, creds llm.Config) (endpoint, error) {
	if err := creds.Validate(name); err != nil {
		return endpoint{}, err
	}
	client, err := newHTTPClient("mcporch-" + name + "/1.0")
	if err != nil {
		return endpoint{}, err
	}
	e := endpoint{name: name, apiKey: creds.APIKey, baseURL: baseURL, model: model, httpClient: client}
	if creds.BaseURL != "" {
		e.baseURL = strings.TrimRight(creds.BaseURL, "/")
	}
	if creds.Model != "" {
		e.model = creds.Model
	}
	return e, nil
}

// Name returns the provider identifier.
func (e endpoint) Name() string {
	return e.name
}

// begin checks req and returns the model to use and a fresh request id.
func (e endpoint) begin(req llm.CompletionRequest) (model, requestID string, err error) {
	if len(req.Messages) == 0 {
		return "", "", &errors.ValidationError{
			Field:      "messages",
			Message:    "completion request must have at least one message",
			Suggestion: "Add at least one message to the completion request",
		}
	}
	model = e.model
	if req.Model != "" {
		model = req.Model
	}
	return model, uuid.NewString(), nil
}

// emptyReply is the error for a 200 response with nothing usable in it.
func (e endpoint) emptyReply(requestID, msg string) error {
	return &errors.ProviderError{Provider: e.name, StatusCode: http.StatusOK, Message: msg, RequestID: requestID}
}

// apiCall describes one JSON POST to a provider API.
type apiCall struct {
	provider  string
	url       string
	headers   map[string]string
	requestID string

	// errorMessage extracts a message from a non-200 body, if it can.
	errorMessage func(body []byte) string
	suggestion   func(status int) string
}

// postJSON sends body and decodes a 200 response into out. Every failure is
// an *errors.ProviderError.
func postJSON(ctx context.Context, client *http.Client, call apiCall, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return call.fail(0, fmt.Sprintf("failed to marshal request: %v", err), err)
	}

	ctx = httpclient.WithRequestID(ctx, call.requestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.url, bytes.NewReader(payload))
	if err != nil {
		return call.fail(0, fmt.Sprintf("failed to create request: %v", err), err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range call.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return call.fail(0, fmt.Sprintf("request failed: %v", err), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return call.fail(resp.StatusCode, fmt.Sprintf("failed to read response: %v", err), err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := ""
		if call.errorMessage != nil {
			msg = call.errorMessage(respBody)
		}
		if msg == "" {
			msg = fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, truncate(string(respBody), 512))
		}
		perr := call.fail(resp.StatusCode, msg, nil)
		if call.suggestion != nil {
			perr.Suggestion = call.suggestion(resp.StatusCode)
		}
		return perr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return call.fail(resp.StatusCode, fmt.Sprintf("failed to parse response: %v", err), err)
	}
	return nil
}

func (c apiCall) fail(status int, msg string, cause error) *errors.ProviderError {
	return &errors.ProviderError{
		Provider:   c.provider,
		StatusCode: status,
		Message:    msg,
		RequestID:  c.requestID,
		Cause:      cause,
	}
}

// genericSuggestion maps common statuses to guidance.
func genericSuggestion(vendor string) func(int) string {
	return func(status int) string {
		switch status {
		case http.StatusUnauthorized:
			return "Check that your API key is valid and correctly configured"
		case http.StatusForbidden:
			return "Your API key may not have access to this model"
		case http.StatusTooManyRequests:
			return "Rate limit exceeded. Retry after a short delay"
		case http.StatusBadRequest, http.StatusNotFound:
			return "Check the model name and request parameters"
		default:
			if status >= 500 {
				return vendor + " API is experiencing issues. Retry after a short delay"
			}
			return "Check the " + vendor + " API documentation for more details"
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
