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
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Transport exchanges one JSON-RPC request for one response over a specific
// dialect. A nil response with a nil error means the server answered with
// nothing usable.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
	Protocol() Protocol
	Close() error
}

// DefaultSSEJSONTimeout bounds the synchronous JSON attempt the SSE transport
// makes before streaming.
const DefaultSSEJSONTimeout = 5 * time.Second

// TransportOptions carries what the transports need from the client.
type TransportOptions struct {
	// HTTPClient serves the HTTP and SSE transports.
	HTTPClient *http.Client

	// Dialer opens WebSocket connections.
	Dialer *websocket.Dialer

	// Header is added to every HTTP request and the WebSocket handshake.
	Header http.Header

	// SSEJSONTimeout bounds the SSE transport's synchronous JSON attempt.
	SSEJSONTimeout time.Duration

	// Logger receives transport diagnostics.
	Logger *slog.Logger
}

func (o TransportOptions) withDefaults() TransportOptions {
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.SSEJSONTimeout <= 0 {
		o.SSEJSONTimeout = DefaultSSEJSONTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// TransportFactory opens a transport for an endpoint.
type TransportFactory func(ctx context.Context, ep Endpoint, opts TransportOptions) (Transport, error)

// NewTransport selects the implementation for ep.Protocol. WebSocket
// connections are dialed here; the HTTP dialects are connectionless.
func NewTransport(ctx context.Context, ep Endpoint, opts TransportOptions) (Transport, error) {
	opts = opts.withDefaults()
	switch ep.Protocol {
	case ProtocolHTTPJSONRPC:
		return newHTTPTransport(ep.WorkingURL, opts), nil
	case ProtocolSSE:
		return newSSETransport(ep.WorkingURL, opts), nil
	case ProtocolWebSocket:
		return dialWebSocket(ctx, ep.WorkingURL, opts)
	case ProtocolStdio:
		return &stdioTransport{url: ep.WorkingURL}, nil
	default:
		return nil, NewError(KindProtocolUndetected, fmt.Sprintf("no transport for protocol %q", ep.Protocol), nil)
	}
}

// stdioTransport is a placeholder. Process-backed servers are not supported.
type stdioTransport struct {
	url string
}

func (t *stdioTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	return nil, NewError(KindNotImplemented, "stdio transport is not supported: "+t.url, nil)
}

func (t *stdioTransport) Protocol() Protocol { return ProtocolStdio }

func (t *stdioTransport) Close() error { return nil }
