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
	"net/url"
	"strings"
	"time"

	"github.com/tombee/mcporch/pkg/llm"
)

const (
	// geminiAPIBaseURL is the base URL for the Generative Language API.
	geminiAPIBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// GeminiDefaultModel is used when no model is configured.
	GeminiDefaultModel = "gemini-2.5-flash"
)

// GeminiProvider implements llm.Provider for the Gemini generateContent API.
type GeminiProvider struct {
	endpoint
}

// NewGemini creates a Gemini provider. Empty BaseURL and Model take the
// public endpoint and GeminiDefaultModel.
func NewGemini(creds llm.Config) (*GeminiProvider, error) {
	e, err := newEndpoint("gemini", geminiAPIBaseURL, GeminiDefaultModel, creds)
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{e}, nil
}

// Complete calls models/{model}:generateContent.
func (p *GeminiProvider) Complete(ctx context.Context, req llm.CompletionRequest) (resp *llm.CompletionResponse, err error) {
	start := time.Now()
	defer func() { llm.ObserveCompletion(p.Name(), start, resp, err) }()

	model, requestID, err := p.begin(req)
	if err != nil {
		return nil, err
	}

	apiReq := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.StopSequences,
		},
	}
	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.MessageRoleSystem:
			system = append(system, msg.Content)
		case llm.MessageRoleAssistant:
			apiReq.Contents = append(apiReq.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: msg.Content}}})
		default:
			apiReq.Contents = append(apiReq.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: msg.Content}}})
		}
	}
	if len(system) > 0 {
		apiReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}

	target := p.baseURL + "/models/" + url.PathEscape(model) + ":generateContent?key=" + url.QueryEscape(p.apiKey)

	var apiResp geminiResponse
	err = postJSON(ctx, p.httpClient, apiCall{
		provider:     p.Name(),
		url:          target,
		requestID:    requestID,
		errorMessage: geminiErrorMessage,
		suggestion:   genericSuggestion("Gemini"),
	}, apiReq, &apiResp)
	if err != nil {
		return nil, err
	}

	if len(apiResp.Candidates) == 0 {
		msg := "response contained no candidates"
		if apiResp.PromptFeedback.BlockReason != "" {
			msg = "prompt blocked: " + apiResp.PromptFeedback.BlockReason
		}
		return nil, p.emptyReply(requestID, msg)
	}

	candidate := apiResp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}

	if apiResp.ModelVersion != "" {
		model = apiResp.ModelVersion
	}
	return &llm.CompletionResponse{
		Content:      text.String(),
		FinishReason: mapGeminiFinishReason(candidate.FinishReason),
		Usage: llm.TokenUsage{
			InputTokens:  apiResp.UsageMetadata.PromptTokenCount,
			OutputTokens: apiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  apiResp.UsageMetadata.TotalTokenCount,
		},
		Model:     model,
		RequestID: requestID,
		Created:   time.Now(),
	}, nil
}

func mapGeminiFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "MAX_TOKENS":
		return llm.FinishReasonLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReasonStop
	}
}

func geminiErrorMessage(body []byte) string {
	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return ""
	}
	if errResp.Error.Status != "" {
		return errResp.Error.Status + ": " + errResp.Error.Message
	}
	return errResp.Error.Message
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}
