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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectedClient(t *testing.T, reply rpcReply, opts ...ClientOption) (*Client, *jsonrpcHandler, *httptest.Server) {
	t.Helper()
	srv, h := newMCPServer(t, reply)
	c := NewClient(srv.URL, append([]ClientOption{WithLogger(testLogger)}, opts...)...)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c, h, srv
}

func TestClient_InvokeBeforeConnect(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", WithLogger(testLogger))

	_, err := c.InvokeTool(context.Background(), "search", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, KindNotInitialized, KindOf(err))
}

func TestClient_CloseBeforeConnectAndTwice(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", WithLogger(testLogger))
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	c2, _, _ := connectedClient(t, nil)
	assert.NoError(t, c2.Close())
	assert.NoError(t, c2.Close())
	assert.False(t, c2.Connected())

	_, err := c2.InvokeTool(context.Background(), "search", nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestClient_ConnectPopulatesCatalog(t *testing.T) {
	c, h, srv := connectedClient(t, nil)
	calls := h.methods()
	require.NotEmpty(t, calls)
	// Detection probes with initialize before the session handshake.
	assert.Equal(t, "initialize", calls[0])

	srv, h = newMCPServer(t, nil)
	c = NewClient(srv.URL,
		WithLogger(testLogger),
		WithEndpoint(Endpoint{BaseURL: srv.URL, Protocol: ProtocolHTTPJSONRPC, WorkingURL: srv.URL + "/mcp"}),
	)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })

	assert.True(t, c.Connected())
	assert.Equal(t, []string{"initialize", "tools/list", "resources/list"}, h.methods())

	caps := c.Capabilities()
	assert.Equal(t, ProtocolHTTPJSONRPC, caps.Protocol)
	assert.Equal(t, srv.URL+"/mcp", caps.Endpoint)
	assert.True(t, caps.Initialized)
	assert.Equal(t, []string{"search", "ping_tool"}, caps.ToolNames())
	require.Len(t, caps.Resources, 1)
	assert.Equal(t, "readme", caps.Resources[0]["name"])
	assert.Equal(t, "fake", caps.ServerInfo["serverInfo"].(map[string]any)["name"])

	search, ok := caps.Tool("search")
	require.True(t, ok)
	schema, ok := search.Schema.(*KnownSchema)
	require.True(t, ok)
	assert.True(t, schema.Properties["query"].Required)

	init, ok := h.lastCall("initialize")
	require.True(t, ok)
	assert.Equal(t, "mcporch", init.Params["clientInfo"].(map[string]any)["name"])
	assert.Contains(t, init.Params["capabilities"], "prompts")
}

func TestClient_CapabilitiesSnapshotsAreIndependent(t *testing.T) {
	c, _, _ := connectedClient(t, nil)

	first := c.Capabilities()
	second := c.Capabilities()
	assert.Equal(t, first, second)

	first.Tools[0].Name = "mutated"
	first.ServerInfo["injected"] = true
	first.Tools[0].Schema.(*KnownSchema).Properties["query"] = ParamSpec{Type: "number"}

	third := c.Capabilities()
	assert.Equal(t, second, third)
	assert.Equal(t, "search", third.Tools[0].Name)
}

func TestClient_InvokeTool(t *testing.T) {
	c, h, _ := connectedClient(t, nil)

	out, err := c.InvokeTool(context.Background(), "search", map[string]any{"query": "golang"})
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, map[string]any{"query": "golang"}, result["arguments"])

	call, ok := h.lastCall("tools/call")
	require.True(t, ok)
	assert.Equal(t, "search", call.Params["name"])
}

func TestClient_InvokeToolFailures(t *testing.T) {
	c, _, _ := connectedClient(t, nil)

	_, err := c.InvokeTool(context.Background(), "fail", nil)
	var res *ErrorResult
	require.ErrorAs(t, err, &res)
	assert.Equal(t, KindToolError, res.Kind)
	assert.Contains(t, res.Message, "tool exploded")
	assert.ErrorIs(t, err, ErrToolError)

	_, err = c.InvokeTool(context.Background(), "silent", nil)
	require.ErrorAs(t, err, &res)
	assert.Equal(t, KindNoResponse, res.Kind)
}

func TestClient_IsErrorResultIsStillAResult(t *testing.T) {
	c, _, _ := connectedClient(t, func(call rpcCall) map[string]any {
		if call.Method == "tools/call" {
			return map[string]any{"result": map[string]any{"isError": true, "content": []any{}}}
		}
		return standardReply(call)
	})

	out, err := c.InvokeTool(context.Background(), "search", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"isError": true, "content": []}`, string(out))
}

func TestClient_FallbackWhenUndetected(t *testing.T) {
	// Probing only /nowhere misses the server, so the /mcp guess is used.
	srv, h := newMCPServer(t, nil)
	c := NewClient(srv.URL,
		WithLogger(testLogger),
		WithDetector(NewDetector(WithProbePaths("/nowhere"), WithProbeMethods("ping"), WithDetectorLogger(testLogger))),
	)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.Equal(t, Endpoint{BaseURL: srv.URL, Protocol: ProtocolHTTPJSONRPC, WorkingURL: srv.URL + "/mcp"}, c.Endpoint())
	assert.Contains(t, h.methods(), "initialize")
}

func TestClient_NoFallbackFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewClient(srv.URL,
		WithLogger(testLogger),
		WithFallbackPolicy(NoFallback),
		WithDetector(NewDetector(WithProbePaths("/mcp"), WithDetectorLogger(testLogger))),
	)
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrProtocolUndetected)
	assert.False(t, c.Connected())
}

func TestClient_ConnectFailsOnRejectedHandshake(t *testing.T) {
	srv, _ := newMCPServer(t, func(call rpcCall) map[string]any {
		return map[string]any{"error": map[string]any{"code": -32600, "message": "go away"}}
	})

	c := NewClient(srv.URL, WithLogger(testLogger))
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindConnectionFailed, KindOf(err))
	assert.ErrorIs(t, err, ErrProtocolError)
	assert.False(t, c.Connected())
}

func TestClient_SSEDegradesWithoutHandshake(t *testing.T) {
	h := &jsonrpcHandler{reply: func(call rpcCall) map[string]any {
		if call.Method == "initialize" {
			return map[string]any{"error": map[string]any{"code": -32601, "message": "no handshake here"}}
		}
		return standardReply(call)
	}}
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := NewClient(srv.URL,
		WithLogger(testLogger),
		WithEndpoint(Endpoint{BaseURL: srv.URL, Protocol: ProtocolSSE, WorkingURL: srv.URL + "/sse"}),
	)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.True(t, c.Connected())
	assert.Equal(t, []string{"initialize", "tools/list"}, h.methods())
	assert.Len(t, c.Capabilities().Tools, 2)
}

func TestClient_VendorCatalogOnlyWhenEmpty(t *testing.T) {
	vendorTools := []ToolDescriptor{{Name: "static-tool"}}
	table := NewVendorTable(Vendor{Name: "local", Signature: "127.0.0.1", Tools: vendorTools})

	t.Run("empty listing uses vendor catalog", func(t *testing.T) {
		c, _, _ := connectedClient(t, func(call rpcCall) map[string]any {
			if call.Method == "tools/list" {
				return map[string]any{"result": map[string]any{"tools": []any{}}}
			}
			return standardReply(call)
		}, WithVendorTable(table))

		assert.Equal(t, []string{"static-tool"}, c.Capabilities().ToolNames())
	})

	t.Run("non-empty listing is kept", func(t *testing.T) {
		c, _, _ := connectedClient(t, nil, WithVendorTable(table))
		assert.Equal(t, []string{"search", "ping_tool"}, c.Capabilities().ToolNames())
	})

	t.Run("failed listing is not replaced", func(t *testing.T) {
		c, _, _ := connectedClient(t, func(call rpcCall) map[string]any {
			if call.Method == "tools/list" {
				return map[string]any{"error": map[string]any{"code": -32000, "message": "listing broke"}}
			}
			return standardReply(call)
		}, WithVendorTable(table))
		assert.Empty(t, c.Capabilities().Tools)

		_, err := c.ListTools(context.Background())
		require.Error(t, err)
		assert.Equal(t, KindNoResponse, KindOf(err))
	})

	t.Run("no vendor match keeps empty catalog", func(t *testing.T) {
		c, _, _ := connectedClient(t, func(call rpcCall) map[string]any {
			if call.Method == "tools/list" {
				return map[string]any{"result": map[string]any{"tools": []any{}}}
			}
			return standardReply(call)
		})
		assert.Empty(t, c.Capabilities().Tools)
	})
}

func TestClient_WebSocketSession(t *testing.T) {
	srv := newWSServer(t, standardReply)
	c := NewClient(wsURL(srv), WithLogger(testLogger))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.Equal(t, ProtocolWebSocket, c.Capabilities().Protocol)
	out, err := c.InvokeTool(context.Background(), "search", map[string]any{"query": "ws"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), "called search"))
}

func TestClient_StdioConnectFails(t *testing.T) {
	c := NewClient("stdio://local", WithLogger(testLogger))
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindConnectionFailed, KindOf(err))
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestClient_TransportFactoryInjection(t *testing.T) {
	fake := &scriptedTransport{reply: standardReply}
	c := NewClient("stdio://fake",
		WithLogger(testLogger),
		WithTransportFactory(func(ctx context.Context, ep Endpoint, opts TransportOptions) (Transport, error) {
			return fake, nil
		}),
	)
	require.NoError(t, c.Connect(context.Background()))
	assert.Len(t, c.Capabilities().Tools, 2)

	require.NoError(t, c.Close())
	assert.True(t, fake.closed)
}

func TestDiscover(t *testing.T) {
	srv, _ := newMCPServer(t, nil)

	caps, err := Discover(context.Background(), srv.URL, WithLogger(testLogger))
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "ping_tool"}, caps.ToolNames())
	assert.True(t, caps.Initialized)
}

// scriptedTransport answers from an rpcReply without any I/O.
type scriptedTransport struct {
	reply  rpcReply
	closed bool
}

func (s *scriptedTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	params, _ := req.Params.(map[string]any)
	out := s.reply(rpcCall{Method: req.Method, Params: params, ID: req.ID})
	if out == nil {
		return nil, nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return decodeResponse(raw)
}

func (s *scriptedTransport) Protocol() Protocol { return ProtocolStdio }

func (s *scriptedTransport) Close() error {
	s.closed = true
	return nil
}
