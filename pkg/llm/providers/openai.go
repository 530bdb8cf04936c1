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
	"time"

	"github.com/tombee/mcporch/pkg/llm"
)

const (
	openAIAPIBaseURL = "https://api.openai.com/v1"

	// OpenAIDefaultModel is used when no model is configured.
	OpenAIDefaultModel = "gpt-4o-mini"
)

// OpenAIProvider implements llm.Provider for the Chat Completions API. Any
// compatible endpoint can be used through llm.Config.BaseURL.
type OpenAIProvider struct {
	endpoint
}

// NewOpenAI creates an OpenAI provider. Empty BaseURL and Model take the
// public endpoint and OpenAIDefaultModel.
func NewOpenAI(creds llm.Config) (*OpenAIProvider, error) {
	e, err := newEndpoint("openai", openAIAPIBaseURL, OpenAIDefaultModel, creds)
	if err != nil {
		return nil, err
	}
	return &OpenAIProvider{e}, nil
}

// Complete calls /chat/completions.
func (p *OpenAIProvider) Complete(ctx context.Context, req llm.CompletionRequest) (resp *llm.CompletionResponse, err error) {
	start := time.Now()
	defer func() { llm.ObserveCompletion(p.Name(), start, resp, err) }()

	model, requestID, err := p.begin(req)
	if err != nil {
		return nil, err
	}

	apiReq := openAIRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.StopSequences,
	}
	for _, msg := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, openAIMessage{Role: string(msg.Role), Content: msg.Content})
	}

	var apiResp openAIResponse
	err = postJSON(ctx, p.httpClient, apiCall{
		provider:     p.Name(),
		url:          p.baseURL + "/chat/completions",
		headers:      map[string]string{"Authorization": "Bearer " + p.apiKey},
		requestID:    requestID,
		errorMessage: openAIErrorMessage,
		suggestion:   genericSuggestion("OpenAI"),
	}, apiReq, &apiResp)
	if err != nil {
		return nil, err
	}

	if len(apiResp.Choices) == 0 {
		return nil, p.emptyReply(requestID, "response contained no choices")
	}
	choice := apiResp.Choices[0]

	return &llm.CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: mapOpenAIFinishReason(choice.FinishReason),
		Usage: llm.TokenUsage{
			InputTokens:  apiResp.Usage.PromptTokens,
			OutputTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:  apiResp.Usage.TotalTokens,
		},
		Model:     apiResp.Model,
		RequestID: requestID,
		Created:   time.Now(),
	}, nil
}

func mapOpenAIFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "length":
		return llm.FinishReasonLength
	case "content_filter":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReasonStop
	}
}

func openAIErrorMessage(body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}
	return errResp.Error.Message
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
