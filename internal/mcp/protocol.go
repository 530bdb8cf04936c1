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

import "strings"

// Protocol identifies the wire dialect a server speaks.
type Protocol string

const (
	ProtocolHTTPJSONRPC Protocol = "http_jsonrpc"
	ProtocolSSE         Protocol = "sse"
	ProtocolWebSocket   Protocol = "websocket"
	ProtocolStdio       Protocol = "stdio"
	ProtocolUnknown     Protocol = "unknown"
)

// ParseProtocol maps a string to a Protocol. Unrecognized values yield
// ProtocolUnknown.
func ParseProtocol(s string) Protocol {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(s))); p {
	case ProtocolHTTPJSONRPC, ProtocolSSE, ProtocolWebSocket, ProtocolStdio:
		return p
	case "http", "jsonrpc", "streamable_http":
		return ProtocolHTTPJSONRPC
	case "ws", "wss":
		return ProtocolWebSocket
	default:
		return ProtocolUnknown
	}
}

// Endpoint is the resolved location of a server. It is fixed for the life of
// a session.
type Endpoint struct {
	// BaseURL is the URL the caller supplied.
	BaseURL string `json:"base_url"`

	// Protocol is the detected (or fallback) dialect.
	Protocol Protocol `json:"protocol"`

	// WorkingURL is the concrete URL requests are sent to.
	WorkingURL string `json:"working_url"`
}

// joinPath appends a probe path to a base URL the way the detector and the
// fallback policy both expect: trailing slashes on the base are dropped and
// an empty path yields the bare base.
func joinPath(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}
