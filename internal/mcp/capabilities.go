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

package mcp

import "encoding/json"

// Capabilities is an immutable snapshot of a session. Mutating a snapshot
// never affects the client or other snapshots.
type Capabilities struct {
	Protocol    Protocol             `json:"protocol"`
	Endpoint    string               `json:"endpoint"`
	Initialized bool                 `json:"initialized"`
	ServerInfo  map[string]any       `json:"server_info"`
	Tools       []ToolDescriptor     `json:"tools"`
	Resources   []ResourceDescriptor `json:"resources"`
}

// Tool returns the named tool from the catalog.
func (c Capabilities) Tool(name string) (ToolDescriptor, bool) {
	for _, t := range c.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolDescriptor{}, false
}

// ToolNames returns catalog names in order.
func (c Capabilities) ToolNames() []string {
	names := make([]string, len(c.Tools))
	for i, t := range c.Tools {
		names[i] = t.Name
	}
	return names
}

// Clone returns a deep copy.
func (c Capabilities) Clone() Capabilities {
	out := Capabilities{
		Protocol:    c.Protocol,
		Endpoint:    c.Endpoint,
		Initialized: c.Initialized,
		ServerInfo:  deepCopyMap(c.ServerInfo),
		Tools:       make([]ToolDescriptor, len(c.Tools)),
		Resources:   make([]ResourceDescriptor, len(c.Resources)),
	}
	for i, t := range c.Tools {
		out.Tools[i] = t.clone()
	}
	for i, r := range c.Resources {
		out.Resources[i] = ResourceDescriptor(deepCopyMap(r))
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

// deepCopyValue copies the container types produced by encoding/json.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case ResourceDescriptor:
		return ResourceDescriptor(deepCopyMap(val))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case json.RawMessage:
		return cloneRaw(val)
	default:
		return v
	}
}
