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

import "github.com/tombee/mcporch/pkg/llm"

func init() {
	llm.Register(llm.Descriptor{
		Name:         "gemini",
		DefaultModel: GeminiDefaultModel,
		New:          func(c llm.Config) (llm.Provider, error) { return open(NewGemini(c)) },
	})
	llm.Register(llm.Descriptor{
		Name:         "anthropic",
		DefaultModel: AnthropicDefaultModel,
		New:          func(c llm.Config) (llm.Provider, error) { return open(NewAnthropic(c)) },
	})
	llm.Register(llm.Descriptor{
		Name:         "openai",
		DefaultModel: OpenAIDefaultModel,
		New:          func(c llm.Config) (llm.Provider, error) { return open(NewOpenAI(c)) },
	})
}

// open keeps a nil concrete provider from becoming a non-nil interface.
func open[P llm.Provider](p P, err error) (llm.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
