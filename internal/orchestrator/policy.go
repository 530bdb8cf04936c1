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
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/mcporch/internal/mcp"
)

// ToolPolicy restricts which tools a task may see and call. Patterns are
// doublestar globs such as "github_*" or "fs/**". Deny wins over Allow; an
// empty Allow list allows everything not denied.
type ToolPolicy struct {
	Allow []string
	Deny  []string
}

// Validate reports the first malformed pattern.
func (p ToolPolicy) Validate() error {
	for _, list := range [][]string{p.Allow, p.Deny} {
		for _, pattern := range list {
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("invalid tool pattern %q", pattern)
			}
		}
	}
	return nil
}

// Permits returns nil when name may be called, or a ToolError explaining why
// not.
func (p ToolPolicy) Permits(name string) error {
	if matchAny(p.Deny, name) {
		return mcp.NewError(mcp.KindToolError, fmt.Sprintf("tool %q is denied by policy", name), nil)
	}
	if len(p.Allow) > 0 && !matchAny(p.Allow, name) {
		return mcp.NewError(mcp.KindToolError, fmt.Sprintf("tool %q is not in the allowed tools", name), nil)
	}
	return nil
}

// Filter returns the tools the policy permits, in catalog order.
func (p ToolPolicy) Filter(tools []mcp.ToolDescriptor) []mcp.ToolDescriptor {
	if len(p.Allow) == 0 && len(p.Deny) == 0 {
		return tools
	}
	out := make([]mcp.ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		if p.Permits(t.Name) == nil {
			out = append(out, t)
		}
	}
	return out
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if pattern == name {
			return true
		}
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
