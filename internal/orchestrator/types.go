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

package orchestrator

import (
	"github.com/tombee/mcporch/internal/mcp"
	"github.com/tombee/mcporch/internal/oracle"
)

// Plan types are shared with the oracle that produces them.
type (
	Plan            = oracle.Plan
	PlanStep        = oracle.PlanStep
	StepRecord      = oracle.StepRecord
	PlanWithResults = oracle.PlanWithResults
)

// Server identifies the MCP server a task runs against.
type Server struct {
	// ID is the registry id, if the server came from a registry.
	ID string `json:"id,omitempty"`

	// URL is the base URL handed to the client.
	URL string `json:"url"`
}

// Status is the final status of a task.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the aggregate outcome of one task. Step failures do not make a
// task fail; only connection failures and cancellation do.
type Result struct {
	TaskID       string            `json:"task_id"`
	Status       Status            `json:"status"`
	Prompt       string            `json:"prompt"`
	ServerID     string            `json:"server_id,omitempty"`
	Protocol     mcp.Protocol      `json:"protocol,omitempty"`
	Capabilities *mcp.Capabilities `json:"capabilities,omitempty"`
	Plan         *Plan             `json:"plan,omitempty"`
	PlanFallback bool              `json:"plan_fallback,omitempty"`
	Results      []StepRecord      `json:"results"`
	Summary      string            `json:"summary,omitempty"`
	Error        *mcp.ErrorResult  `json:"error,omitempty"`
}

// Succeeded counts successful step records.
func (r *Result) Succeeded() int {
	n := 0
	for _, rec := range r.Results {
		if rec.Success {
			n++
		}
	}
	return n
}
