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

// Package llm is the narrow model interface the planning oracle talks to,
// with a catalog of providers and a retrying wrapper.
package llm

import (
	"context"
	"time"
)

// Provider completes a conversation.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Role is the author of a message.
type Role string

const (
	MessageRoleSystem    Role = "system"
	MessageRoleUser      Role = "user"
	MessageRoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is one call to a model. Nil optional fields take the
// provider's defaults.
type CompletionRequest struct {
	Messages      []Message
	Model         string
	Temperature   *float64
	MaxTokens     *int
	StopSequences []string
}

// FinishReason says why generation stopped.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// TokenUsage counts tokens consumed by one completion.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// CompletionResponse is a model's reply.
type CompletionResponse struct {
	Content      string
	FinishReason FinishReason
	Usage        TokenUsage

	// Model is the model that actually served the request, which may differ
	// from the one asked for.
	Model string

	// RequestID matches the X-Request-ID sent to the provider.
	RequestID string
	Created   time.Time
}

// Truncated reports whether the reply was cut short.
func (r *CompletionResponse) Truncated() bool {
	return r.FinishReason == FinishReasonLength || r.FinishReason == FinishReasonContentFilter
}

// Float64 returns &v.
func Float64(v float64) *float64 { return &v }

// Int returns &v.
func Int(v int) *int { return &v }

// UserPrompt is a conversation of a single user message.
func UserPrompt(prompt string) []Message {
	return []Message{{Role: MessageRoleUser, Content: prompt}}
}
