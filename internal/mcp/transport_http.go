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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// sessionHeader carries the streamable-HTTP session id.
const sessionHeader = "Mcp-Session-Id"

// maxResponseBody caps a non-streaming response body.
const maxResponseBody = 32 << 20

// httpTransport sends one POST per call.
type httpTransport struct {
	url    string
	client *http.Client
	header http.Header
	logger *slog.Logger
	closed atomic.Bool

	mu        sync.Mutex
	sessionID string
}

func newHTTPTransport(url string, opts TransportOptions) *httpTransport {
	return &httpTransport{url: url, client: opts.HTTPClient, header: opts.Header, logger: opts.Logger}
}

func (t *httpTransport) Protocol() Protocol { return ProtocolHTTPJSONRPC }

func (t *httpTransport) Close() error {
	t.closed.Store(true)
	return nil
}

func (t *httpTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if t.closed.Load() {
		return nil, NewError(KindConnectionClosed, "transport closed", nil)
	}

	t.mu.Lock()
	session := t.sessionID
	t.mu.Unlock()

	resp, err := postJSON(ctx, t.client, t.url, req, "application/json, text/event-stream", t.header, session)
	if err != nil {
		return nil, transportError(ctx, KindConnectionFailed, "POST "+t.url, err)
	}
	defer resp.Body.Close()

	if id := resp.Header.Get(sessionHeader); id != "" {
		t.mu.Lock()
		t.sessionID = id
		t.mu.Unlock()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, httpStatusError(resp)
	}
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if isEventStream(resp) {
		out, err := readSSE(resp.Body)
		if err != nil {
			return nil, transportError(ctx, KindProtocolError, "read event stream", err)
		}
		return out, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, transportError(ctx, KindConnectionFailed, "read response", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	return decodeResponse(body)
}

// postJSON sends req as a JSON body.
func postJSON(ctx context.Context, client *http.Client, url string, req *Request, accept string, header http.Header, session string) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewError(KindProtocolError, "encode request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(KindConnectionFailed, "build request", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	if session != "" {
		httpReq.Header.Set(sessionHeader, session)
	}
	return client.Do(httpReq)
}

func isEventStream(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "event-stream")
}

// httpStatusError drains a short excerpt of the body into the message.
func httpStatusError(resp *http.Response) *Error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("server returned %s", resp.Status)
	if s := strings.TrimSpace(string(excerpt)); s != "" {
		msg = msg + ": " + s
	}
	return &Error{Kind: KindHTTPError, Message: msg, Status: resp.StatusCode}
}
