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
	"strings"
	"time"

	"github.com/tombee/mcporch/pkg/llm"
)

const (
	// anthropicAPIBaseURL is the base URL for the Anthropic API
	anthropicAPIBaseURL = "https://api.anthropic.com/v1"

	// anthropicAPIVersion is the API version to use
	anthropicAPIVersion = "2023-06-01"

	// AnthropicDefaultModel is used when no model is configured.
	AnthropicDefaultModel = "claude-sonnet-4-5"
)

// AnthropicProvider implements llm.Provider over the Messages API.
type AnthropicProvider struct {
	endpoint
}

// NewAnthropic creates an Anthropic provider. Empty BaseURL and Model take the
// public endpoint and AnthropicDefaultModel.
func NewAnthropic(creds llm.Config) (*AnthropicProvider, error) {
	e, err := newEndpoint("anthropic", anthropicAPIBaseURL, AnthropicDefaultModel, creds)
	if err != nil {
		return nil, err
	}
	return &AnthropicProvider{e}, nil
}

// Complete sends a synchronous completion request to the Anthropic Messages API.
func (p *AnthropicProvider) Complete(ctx context.Context, req llm.CompletionRequest) (resp *llm.CompletionResponse, err error) {
	start := time.Now()
	defer func() { llm.ObserveCompletion(p.Name(), start, resp, err) }()

	model, requestID, err := p.begin(req)
	if err != nil {
		return nil, err
	}
	maxTokens := 4096
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	apiReq := anthropicRequest{
		Model:         model,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		StopSequences: req.StopSequences,
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.MessageRoleSystem:
			// Anthropic uses a separate system field
			if apiReq.System != "" {
				apiReq.System += "\n\n"
			}
			apiReq.System += msg.Content
		case llm.MessageRoleAssistant:
			apiReq.Messages = append(apiReq.Messages, anthropicMessage{Role: "assistant", Content: msg.Content})
		default:
			apiReq.Messages = append(apiReq.Messages, anthropicMessage{Role: "user", Content: msg.Content})
		}
	}

	var apiResp anthropicResponse
	err = postJSON(ctx, p.httpClient, apiCall{
		provider: p.Name(),
		url:      p.baseURL + "/messages",
		headers: map[string]string{
			"x-api-key":         p.apiKey,
			"anthropic-version": anthropicAPIVersion,
		},
		requestID:    requestID,
		errorMessage: anthropicErrorMessage,
		suggestion:   genericSuggestion("Anthropic"),
	}, apiReq, &apiResp)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type != "text" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n")
		}
		text.WriteString(block.Text)
	}

	return &llm.CompletionResponse{
		Content:      text.String(),
		FinishReason: mapStopReason(apiResp.StopReason),
		Usage: llm.TokenUsage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
			TotalTokens:  apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		Model:     apiResp.Model,
		RequestID: requestID,
		Created:   time.Now(),
	}, nil
}

// mapStopReason converts Anthropic's stop_reason to our FinishReason.
func mapStopReason(stopReason string) llm.FinishReason {
	switch stopReason {
	case "max_tokens":
		return llm.FinishReasonLength
	case "refusal":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReasonStop
	}
}

func anthropicErrorMessage(body []byte) string {
	var errResp struct {
		Type  string `json:"type"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}
	return errResp.Error.Message
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
