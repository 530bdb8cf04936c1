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

/*
Package mcp is a protocol-adaptive client for Model Context Protocol servers.

A server may speak JSON-RPC over plain HTTP POST, Server-Sent Events,
WebSocket or stdio, and callers usually do not know which. The Detector probes
a base URL to find the dialect and working endpoint, a Transport hides the
dialect behind one Send contract, and Client owns one session on top of both:

	client := mcp.NewClient("https://example.com", mcp.WithLogger(logger))
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	out, err := client.InvokeTool(ctx, "search", map[string]any{"q": "go"})

# Detection

For http(s) URLs the detector walks DefaultProbePaths and, for each, tries a
JSON-RPC probe per method in DefaultProbeMethods followed by an SSE probe.
The first match wins. ws:// and stdio:// URLs are classified by scheme alone.
When nothing matches the client applies its FallbackPolicy.

# Errors

Failures are *Error values carrying an ErrorKind. Use KindOf or errors.Is
with the Err* sentinels to branch:

	if errors.Is(err, mcp.ErrNotInitialized) { ... }

A server-reported tool failure is an *ErrorResult, which is also an error.
*/
package mcp
