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

package log

import (
	"log/slog"
	"time"
)

// Call describes one outbound MCP call for logging purposes.
type Call struct {
	// Method is the JSON-RPC method (e.g., "tools/call").
	Method string

	// Protocol is the wire dialect used for the call.
	Protocol string

	// URL is the endpoint the call was sent to.
	URL string

	// RequestID is the JSON-RPC id of the request.
	RequestID string
}

func (c *Call) attrs() []any {
	attrs := []any{
		EventKey, "mcp_call",
		MethodKey, c.Method,
	}
	if c.Protocol != "" {
		attrs = append(attrs, ProtocolKey, c.Protocol)
	}
	if c.URL != "" {
		attrs = append(attrs, EndpointKey, c.URL)
	}
	if c.RequestID != "" {
		attrs = append(attrs, "request_id", c.RequestID)
	}
	return attrs
}

// Timed runs fn and logs its outcome: debug on success, warn on failure.
// The error from fn is returned unchanged.
func Timed(logger *slog.Logger, call *Call, fn func() error) error {
	start := time.Now()
	err := fn()
	attrs := append(call.attrs(), DurationKey, time.Since(start).Milliseconds())

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		logger.Warn("mcp call failed", attrs...)
		return err
	}

	logger.Debug("mcp call completed", attrs...)
	return nil
}
