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
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	internallog "github.com/tombee/mcporch/internal/log"
)

// rpcCall is a decoded request as seen by a fake server.
type rpcCall struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
	ID     any            `json:"id"`
}

// rpcReply builds the body for a call. Returning nil writes an empty object
// (neither result nor error).
type rpcReply func(call rpcCall) map[string]any

// jsonrpcHandler answers JSON-RPC POSTs with reply and records every call.
type jsonrpcHandler struct {
	reply rpcReply

	mu    sync.Mutex
	calls []rpcCall
}

func (h *jsonrpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var call rpcCall
	if err := json.Unmarshal(body, &call); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	h.calls = append(h.calls, call)
	h.mu.Unlock()

	out := map[string]any{}
	if reply := h.reply(call); reply != nil {
		out = reply
		out["jsonrpc"] = "2.0"
		out["id"] = call.ID
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *jsonrpcHandler) methods() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	for i, c := range h.calls {
		out[i] = c.Method
	}
	return out
}

func (h *jsonrpcHandler) lastCall(method string) (rpcCall, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.calls) - 1; i >= 0; i-- {
		if h.calls[i].Method == method {
			return h.calls[i], true
		}
	}
	return rpcCall{}, false
}

// standardReply is a well-behaved server with two tools.
func standardReply(call rpcCall) map[string]any {
	switch call.Method {
	case "initialize":
		return map[string]any{"result": map[string]any{
			"protocolVersion": "2025-06-18",
			"serverInfo":      map[string]any{"name": "fake", "version": "1.0"},
			"capabilities":    map[string]any{"tools": map[string]any{}, "resources": map[string]any{}},
		}}
	case "tools/list":
		return map[string]any{"result": map[string]any{"tools": []any{
			map[string]any{
				"name":        "search",
				"description": "Search things",
				"inputSchema": map[string]any{
					"type":       "object",
					"properties": map[string]any{"query": map[string]any{"type": "string"}},
					"required":   []any{"query"},
				},
			},
			map[string]any{"name": "ping_tool", "description": "No schema"},
		}}}
	case "resources/list":
		return map[string]any{"result": map[string]any{"resources": []any{
			map[string]any{"uri": "file:///readme", "name": "readme"},
		}}}
	case "tools/call":
		name, _ := call.Params["name"].(string)
		switch name {
		case "fail":
			return map[string]any{"error": map[string]any{"code": -32000, "message": "tool exploded"}}
		case "silent":
			return nil
		}
		return map[string]any{"result": map[string]any{
			"content":   []any{map[string]any{"type": "text", "text": "called " + name}},
			"arguments": call.Params["arguments"],
		}}
	default:
		return map[string]any{"error": map[string]any{"code": -32601, "message": "method not found"}}
	}
}

// newMCPServer serves standardReply (or reply) at /mcp and 404 elsewhere.
func newMCPServer(t *testing.T, reply rpcReply) (*httptest.Server, *jsonrpcHandler) {
	t.Helper()
	if reply == nil {
		reply = standardReply
	}
	h := &jsonrpcHandler{reply: reply}
	mux := http.NewServeMux()
	mux.Handle("/mcp", h)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, h
}

// roundTripFunc lets a function serve as an http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// noNetworkClient fails the test on any request.
func noNetworkClient(t *testing.T) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Errorf("unexpected network call to %s", r.URL)
		return nil, errors.New("network disabled")
	})}
}

var testLogger = internallog.Discard()
