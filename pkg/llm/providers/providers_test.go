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

package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/tombee/mcporch/pkg/errors"
	"github.com/tombee/mcporch/pkg/llm"
)

// captured records the last request a fake API received.
type captured struct {
	path   string
	query  string
	header http.Header
	body   map[string]any
}

func fakeAPI(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.header = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func planRequest() llm.CompletionRequest {
	return llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.MessageRoleSystem, Content: "You plan tool calls."},
			{Role: llm.MessageRoleUser, Content: "find docs"},
		},
		Temperature: llm.Float64(0.1),
		MaxTokens:   llm.Int(1024),
	}
}

func TestGeminiProvider_Complete(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"steps\":"}, {"text": "[]}"}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 5, "totalTokenCount": 17},
		"modelVersion": "gemini-2.5-flash-001"
	}`)

	p, err := NewGemini(llm.Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	resp, err := p.Complete(context.Background(), planRequest())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if resp.Content != `{"steps":[]}` {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 17 || resp.Usage.InputTokens != 12 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
	if resp.Model != "gemini-2.5-flash-001" {
		t.Errorf("unexpected model %q", resp.Model)
	}
	if got.path != "/models/gemini-2.5-flash:generateContent" {
		t.Errorf("unexpected path %q", got.path)
	}
	if got.query != "key=test-key" {
		t.Errorf("unexpected query %q", got.query)
	}

	cfg, _ := got.body["generationConfig"].(map[string]any)
	if cfg["temperature"] != 0.1 || cfg["maxOutputTokens"] != float64(1024) {
		t.Errorf("unexpected generationConfig %v", cfg)
	}
	if _, ok := got.body["systemInstruction"]; !ok {
		t.Error("system message must become systemInstruction")
	}
	contents, _ := got.body["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("expected 1 content entry, got %d", len(contents))
	}
}

func TestGeminiProvider_Errors(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusTooManyRequests, `{"error": {"code": 429, "message": "quota", "status": "RESOURCE_EXHAUSTED"}}`)
	p, _ := NewGemini(llm.Config{APIKey: "k", BaseURL: srv.URL})

	_, err := p.Complete(context.Background(), planRequest())
	var perr *pkgerrors.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.StatusCode != 429 || !perr.IsRetryable() {
		t.Errorf("expected retryable 429, got %+v", perr)
	}
	if perr.Message != "RESOURCE_EXHAUSTED: quota" {
		t.Errorf("unexpected message %q", perr.Message)
	}
	if perr.RequestID == "" {
		t.Error("request id must be set")
	}

	blocked, _ := fakeAPI(t, http.StatusOK, `{"candidates": [], "promptFeedback": {"blockReason": "SAFETY"}}`)
	p, _ = NewGemini(llm.Config{APIKey: "k", BaseURL: blocked.URL})
	_, err = p.Complete(context.Background(), planRequest())
	if err == nil || !strings.Contains(err.Error(), "prompt blocked: SAFETY") {
		t.Errorf("expected blocked prompt error, got %v", err)
	}

	if _, err := NewGemini(llm.Config{}); err == nil {
		t.Error("expected error without API key")
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{})
	var verr *pkgerrors.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for empty request, got %v", err)
	}
}

func TestAnthropicProvider_Complete(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{
		"id": "msg_1", "model": "claude-test",
		"content": [{"type": "text", "text": "first"}, {"type": "text", "text": "second"}],
		"stop_reason": "max_tokens",
		"usage": {"input_tokens": 3, "output_tokens": 4}
	}`)

	p, err := NewAnthropic(llm.Config{APIKey: "ak", BaseURL: srv.URL, Model: "claude-test"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	resp, err := p.Complete(context.Background(), planRequest())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if resp.Content != "first\nsecond" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.FinishReason != llm.FinishReasonLength {
		t.Errorf("unexpected finish reason %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
	if got.path != "/messages" || got.header.Get("x-api-key") != "ak" || got.header.Get("anthropic-version") != anthropicAPIVersion {
		t.Errorf("unexpected request %s %v", got.path, got.header)
	}
	if got.body["system"] != "You plan tool calls." || got.body["model"] != "claude-test" {
		t.Errorf("unexpected body %v", got.body)
	}
	if got.header.Get("X-Request-ID") != resp.RequestID {
		t.Errorf("request id header %q does not match %q", got.header.Get("X-Request-ID"), resp.RequestID)
	}
}

func TestAnthropicProvider_ErrorBody(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusUnauthorized, `{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`)
	p, _ := NewAnthropic(llm.Config{APIKey: "ak", BaseURL: srv.URL})

	_, err := p.Complete(context.Background(), planRequest())
	var perr *pkgerrors.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Message != "invalid x-api-key" || perr.IsRetryable() {
		t.Errorf("unexpected error %+v", perr)
	}
	if !strings.Contains(perr.Suggestion, "API key") {
		t.Errorf("unexpected suggestion %q", perr.Suggestion)
	}
}

func TestOpenAIProvider_Complete(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{
		"model": "gpt-test",
		"choices": [{"message": {"role": "assistant", "content": "done"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 1, "completion_tokens": 2, "total_tokens": 3}
	}`)

	p, err := NewOpenAI(llm.Config{APIKey: "ok", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	resp, err := p.Complete(context.Background(), planRequest())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if resp.Content != "done" || resp.Usage.TotalTokens != 3 || resp.Model != "gpt-test" {
		t.Errorf("unexpected response %+v", resp)
	}
	if got.path != "/chat/completions" || got.header.Get("Authorization") != "Bearer ok" {
		t.Errorf("unexpected request %s %v", got.path, got.header)
	}
	msgs, _ := got.body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("unexpected first message %v", msgs[0])
	}
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, `{"choices": []}`)
	p, _ := NewOpenAI(llm.Config{APIKey: "ok", BaseURL: srv.URL})

	_, err := p.Complete(context.Background(), planRequest())
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("expected no choices error, got %v", err)
	}
}

func TestDefaultCatalog(t *testing.T) {
	for _, name := range []string{"gemini", "anthropic", "openai"} {
		d, ok := llm.Lookup(name)
		if !ok {
			t.Fatalf("%s not registered", name)
		}
		if d.DefaultModel == "" {
			t.Errorf("%s has no default model", name)
		}
	}

	p, err := llm.Open("openai", llm.Config{APIKey: "ok"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if p.(*OpenAIProvider).model != OpenAIDefaultModel {
		t.Errorf("expected default model, got %s", p.(*OpenAIProvider).model)
	}

	if _, err := llm.Open("gemini", llm.Config{}); err == nil {
		t.Error("expected missing key error")
	}
}
