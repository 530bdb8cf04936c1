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

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// ToolSchema is the input schema of a tool. It is either a KnownSchema (an
// object schema with properties) or an OpaqueSchema (anything else). A tool
// without a schema carries a nil ToolSchema.
type ToolSchema interface {
	json.Marshaler
	toolSchema()
}

// ParamSpec describes one property of a KnownSchema.
type ParamSpec struct {
	Type        string `json:"type,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// KnownSchema is an object schema whose properties were understood.
type KnownSchema struct {
	// Properties maps property names to their specs.
	Properties map[string]ParamSpec

	// Order lists property names in the order the server declared them.
	Order []string

	// raw is the schema as received, used when marshaling back to the wire.
	raw json.RawMessage
}

// OpaqueSchema is a schema that is not an object schema with properties. It
// is passed through untouched.
type OpaqueSchema struct {
	Raw json.RawMessage
}

func (*KnownSchema) toolSchema()  {}
func (*OpaqueSchema) toolSchema() {}

// MarshalJSON writes the schema in JSON Schema form.
func (s *KnownSchema) MarshalJSON() ([]byte, error) {
	if len(s.raw) > 0 {
		return s.raw, nil
	}
	props := make(map[string]any, len(s.Properties))
	var required []string
	for _, name := range s.names() {
		spec := s.Properties[name]
		prop := map[string]any{}
		if spec.Type != "" {
			prop["type"] = spec.Type
		}
		if spec.Description != "" {
			prop["description"] = spec.Description
		}
		if spec.Default != nil {
			prop["default"] = spec.Default
		}
		props[name] = prop
		if spec.Required {
			required = append(required, name)
		}
	}
	out := mcpgo.ToolArgumentsSchema{Type: "object", Properties: props, Required: required}
	return json.Marshal(out)
}

// MarshalJSON writes the raw schema.
func (s *OpaqueSchema) MarshalJSON() ([]byte, error) {
	if len(s.Raw) == 0 {
		return []byte("null"), nil
	}
	return s.Raw, nil
}

// names returns property names in declaration order, falling back to sorted
// order for properties Order does not mention.
func (s *KnownSchema) names() []string {
	seen := make(map[string]bool, len(s.Order))
	names := make([]string, 0, len(s.Properties))
	for _, name := range s.Order {
		if _, ok := s.Properties[name]; ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	var rest []string
	for name := range s.Properties {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Required returns the names of required properties in declaration order.
func (s *KnownSchema) Required() []string {
	var out []string
	for _, name := range s.names() {
		if s.Properties[name].Required {
			out = append(out, name)
		}
	}
	return out
}

// ParseToolSchema classifies a raw inputSchema. Empty input and JSON null
// yield nil.
func ParseToolSchema(raw json.RawMessage) ToolSchema {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return &OpaqueSchema{Raw: cloneRaw(raw)}
	}
	propsRaw, ok := top["properties"]
	if !ok {
		return &OpaqueSchema{Raw: cloneRaw(raw)}
	}

	var decoded mcpgo.ToolArgumentsSchema
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.Properties == nil {
		return &OpaqueSchema{Raw: cloneRaw(raw)}
	}

	required := make(map[string]bool, len(decoded.Required))
	for _, name := range decoded.Required {
		required[name] = true
	}

	schema := &KnownSchema{
		Properties: make(map[string]ParamSpec, len(decoded.Properties)),
		Order:      objectKeyOrder(propsRaw),
		raw:        cloneRaw(raw),
	}
	for name, v := range decoded.Properties {
		spec := ParamSpec{Required: required[name]}
		if prop, ok := v.(map[string]any); ok {
			spec.Type = schemaType(prop["type"])
			spec.Description, _ = prop["description"].(string)
			spec.Default = prop["default"]
		}
		schema.Properties[name] = spec
	}
	return schema
}

// schemaType reads a JSON Schema type, which may be a string or a list such
// as ["string", "null"].
func schemaType(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s != "null" {
				return s
			}
		}
	}
	return ""
}

// objectKeyOrder returns the top-level keys of a JSON object in document
// order.
func objectKeyOrder(raw json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		key, ok := tok.(string)
		if !ok {
			return keys
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}
	return keys
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// ToolDescriptor describes one tool in a server's catalog.
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      ToolSchema
}

type toolWire struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// MarshalJSON writes the MCP wire shape.
func (t ToolDescriptor) MarshalJSON() ([]byte, error) {
	w := toolWire{Name: t.Name, Description: t.Description}
	if t.Schema != nil {
		raw, err := t.Schema.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", t.Name, err)
		}
		w.InputSchema = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the MCP wire shape.
func (t *ToolDescriptor) UnmarshalJSON(data []byte) error {
	var w toolWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.Name = w.Name
	t.Description = w.Description
	t.Schema = ParseToolSchema(w.InputSchema)
	return nil
}

// BuildArguments fills schema defaults into a copy of supplied. Opaque and
// missing schemas pass the arguments through unchanged.
func (t ToolDescriptor) BuildArguments(supplied map[string]any) map[string]any {
	args := make(map[string]any, len(supplied))
	for k, v := range supplied {
		args[k] = v
	}

	switch schema := t.Schema.(type) {
	case *KnownSchema:
		for _, name := range schema.names() {
			spec := schema.Properties[name]
			if _, ok := args[name]; !ok && spec.Default != nil {
				args[name] = spec.Default
			}
		}
	case *OpaqueSchema, nil:
	}
	return args
}

// MissingArguments lists required properties absent from args. Only a
// KnownSchema can report anything.
func (t ToolDescriptor) MissingArguments(args map[string]any) []string {
	schema, ok := t.Schema.(*KnownSchema)
	if !ok {
		return nil
	}
	var missing []string
	for _, name := range schema.Required() {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Signature renders the tool as a one-line summary for LLM prompts, e.g.
// "search(query: string*, limit: integer) - Search the index".
func (t ToolDescriptor) Signature() string {
	var b strings.Builder
	b.WriteString(t.Name)

	switch schema := t.Schema.(type) {
	case *KnownSchema:
		b.WriteString("(")
		for i, name := range schema.names() {
			if i > 0 {
				b.WriteString(", ")
			}
			spec := schema.Properties[name]
			b.WriteString(name)
			if spec.Type != "" {
				b.WriteString(": " + spec.Type)
			}
			if spec.Required {
				b.WriteString("*")
			}
		}
		b.WriteString(")")
	case *OpaqueSchema:
		b.WriteString("(" + string(schema.Raw) + ")")
	case nil:
		b.WriteString("()")
	}

	if t.Description != "" {
		b.WriteString(" - " + t.Description)
	}
	return b.String()
}

func (t ToolDescriptor) clone() ToolDescriptor {
	out := t
	switch schema := t.Schema.(type) {
	case *KnownSchema:
		props := make(map[string]ParamSpec, len(schema.Properties))
		for k, v := range schema.Properties {
			v.Default = deepCopyValue(v.Default)
			props[k] = v
		}
		out.Schema = &KnownSchema{
			Properties: props,
			Order:      append([]string(nil), schema.Order...),
			raw:        cloneRaw(schema.raw),
		}
	case *OpaqueSchema:
		out.Schema = &OpaqueSchema{Raw: cloneRaw(schema.Raw)}
	}
	return out
}

// ResourceDescriptor is a vendor-defined resource entry, passed through as is.
type ResourceDescriptor map[string]any
