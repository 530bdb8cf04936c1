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
	"encoding/json"
	"net/url"
	"strings"
)

// Vendor is a known server family with a static escape hatch for servers that
// cannot be probed or do not list their tools.
type Vendor struct {
	// Name identifies the vendor in logs and metrics.
	Name string

	// Signature is matched case-insensitively against the host of a URL.
	Signature string

	// Protocol and Path give the preferred endpoint when detection finds
	// nothing. An empty Protocol defers to the generic fallback.
	Protocol Protocol
	Path     string

	// Tools is the static catalog used when tools/list comes back empty.
	Tools []ToolDescriptor
}

// Matches reports whether rawURL belongs to this vendor.
func (v Vendor) Matches(rawURL string) bool {
	if v.Signature == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Host), strings.ToLower(v.Signature))
}

// VendorTable is an ordered list of vendors. The first match wins.
type VendorTable struct {
	vendors []Vendor
}

// NewVendorTable builds a table from vendors in priority order.
func NewVendorTable(vendors ...Vendor) *VendorTable {
	return &VendorTable{vendors: append([]Vendor(nil), vendors...)}
}

// Match returns the first vendor whose signature matches rawURL.
func (t *VendorTable) Match(rawURL string) (Vendor, bool) {
	if t == nil {
		return Vendor{}, false
	}
	for _, v := range t.vendors {
		if v.Matches(rawURL) {
			return v, true
		}
	}
	return Vendor{}, false
}

// Vendors returns a copy of the table's entries.
func (t *VendorTable) Vendors() []Vendor {
	if t == nil {
		return nil
	}
	return append([]Vendor(nil), t.vendors...)
}

// DefaultVendorTable holds the vendors known to need the escape hatch.
func DefaultVendorTable() *VendorTable {
	return NewVendorTable(context7Vendor())
}

func context7Vendor() Vendor {
	return Vendor{
		Name:      "context7",
		Signature: "context7",
		Protocol:  ProtocolSSE,
		Path:      "/sse",
		Tools: []ToolDescriptor{
			mustTool(`{
				"name": "resolve-library-id",
				"description": "Resolves a library name to a Context7-compatible library ID",
				"inputSchema": {
					"type": "object",
					"properties": {"libraryName": {"type": "string"}},
					"required": ["libraryName"]
				}
			}`),
			mustTool(`{
				"name": "get-library-docs",
				"description": "Fetches documentation for a Context7-compatible library ID",
				"inputSchema": {
					"type": "object",
					"properties": {
						"context7CompatibleLibraryID": {"type": "string"},
						"topic": {"type": "string"}
					},
					"required": ["context7CompatibleLibraryID"]
				}
			}`),
		},
	}
}

func mustTool(raw string) ToolDescriptor {
	var t ToolDescriptor
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		panic(err)
	}
	return t
}

// FallbackPolicy picks an endpoint when detection finds nothing. Returning
// false makes the connection fail with KindProtocolUndetected.
type FallbackPolicy interface {
	Resolve(baseURL string) (Endpoint, bool)
}

// FallbackFunc adapts a function to FallbackPolicy.
type FallbackFunc func(baseURL string) (Endpoint, bool)

// Resolve implements FallbackPolicy.
func (f FallbackFunc) Resolve(baseURL string) (Endpoint, bool) { return f(baseURL) }

// NoFallback refuses to guess.
var NoFallback FallbackPolicy = FallbackFunc(func(string) (Endpoint, bool) {
	return Endpoint{}, false
})

// VendorFallback prefers the endpoint registered for a matching vendor and
// otherwise assumes JSON-RPC over HTTP at baseURL + "/mcp".
type VendorFallback struct {
	Table *VendorTable
}

// Resolve implements FallbackPolicy.
func (f VendorFallback) Resolve(baseURL string) (Endpoint, bool) {
	if v, ok := f.Table.Match(baseURL); ok && v.Protocol != "" {
		vendorFallbacksTotal.WithLabelValues(v.Name, "endpoint").Inc()
		return Endpoint{BaseURL: baseURL, Protocol: v.Protocol, WorkingURL: joinPath(baseURL, v.Path)}, true
	}
	return Endpoint{BaseURL: baseURL, Protocol: ProtocolHTTPJSONRPC, WorkingURL: joinPath(baseURL, "/mcp")}, true
}
