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

// Package mcptest provides in-process MCP servers and an isolated
// environment for command tests.
package mcptest

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/zalando/go-keyring"
)

// NewServer runs a streamable HTTP MCP server at <url>/mcp exposing echo and
// upper. Both tools accept an optional text argument.
func NewServer(t testing.TB) *httptest.Server {
	t.Helper()

	s := server.NewMCPServer("mcptest", "0.1.0", server.WithToolCapabilities(false))
	s.AddTool(
		mcpgo.NewTool("echo",
			mcpgo.WithDescription("Echo text back"),
			mcpgo.WithString("text", mcpgo.Description("Text to echo")),
		),
		func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			return mcpgo.NewToolResultText("echo: " + req.GetString("text", "")), nil
		},
	)
	s.AddTool(
		mcpgo.NewTool("upper",
			mcpgo.WithDescription("Upper-case text"),
			mcpgo.WithString("text", mcpgo.Description("Text to convert")),
		),
		func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			return mcpgo.NewToolResultText(strings.ToUpper(req.GetString("text", ""))), nil
		},
	)

	srv := httptest.NewServer(server.NewStreamableHTTPServer(s, server.WithEndpointPath("/mcp")))
	t.Cleanup(srv.Close)
	return srv
}

// Isolate points configuration at an empty directory, disables the oracle
// and replaces the system keychain with an in-memory one.
func Isolate(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("MCPORCH_CONFIG", "")
	t.Setenv("MCPORCH_ORACLE_PROVIDER", "none")
	t.Setenv("MCPORCH_METRICS_ADDR", "")
	t.Setenv("MCPORCH_TRACING_ENABLED", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("MCPORCH_LOG_LEVEL", "error")
	keyring.MockInit()
	return dir
}
