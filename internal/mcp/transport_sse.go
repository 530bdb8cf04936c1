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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// maxSSELine caps a single event-stream line.
const maxSSELine = 4 << 20

// sseTransport first tries a synchronous JSON POST against the derived JSON
// endpoint and streams only when that fails.
type sseTransport struct {
	url         string
	jsonURL     string
	client      *http.Client
	header      http.Header
	jsonTimeout time.Duration
	logger      *slog.Logger
	closed      atomic.Bool
}

func newSSETransport(url string, opts TransportOptions) *sseTransport {
	return &sseTransport{
		url:         url,
		jsonURL:     jsonEndpointFor(url),
		client:      opts.HTTPClient,
		header:      opts.Header,
		jsonTimeout: opts.SSEJSONTimeout,
		logger:      opts.Logger,
	}
}

// jsonEndpointFor swaps the last "/sse" segment for "/mcp".
func jsonEndpointFor(url string) string {
	i := strings.LastIndex(url, "/sse")
	if i < 0 {
		return url
	}
	return url[:i] + "/mcp" + url[i+len("/sse"):]
}

func (t *sseTransport) Protocol() Protocol { return ProtocolSSE }

func (t *sseTransport) Close() error {
	t.closed.Store(true)
	return nil
}

func (t *sseTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if t.closed.Load() {
		return nil, NewError(KindConnectionClosed, "transport closed", nil)
	}

	if resp, ok := t.trySync(ctx, req); ok {
		return resp, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, transportError(ctx, KindConnectionFailed, "SSE request", err)
	}

	resp, err := postJSON(ctx, t.client, t.url, req, "text/event-stream", t.header, "")
	if err != nil {
		return nil, transportError(ctx, KindConnectionFailed, "POST "+t.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, httpStatusError(resp)
	}

	out, err := readSSE(resp.Body)
	if err != nil {
		return nil, transportError(ctx, KindProtocolError, "read event stream", err)
	}
	return out, nil
}

// trySync posts to the JSON endpoint and reports whether it produced a
// decodable JSON object.
func (t *sseTransport) trySync(ctx context.Context, req *Request) (*Response, bool) {
	ctx, cancel := context.WithTimeout(ctx, t.jsonTimeout)
	defer cancel()

	resp, err := postJSON(ctx, t.client, t.jsonURL, req, "application/json", t.header, "")
	if err != nil {
		t.logger.Debug("sse json attempt failed", "url", t.jsonURL, "error", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || isEventStream(resp) {
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, false
	}
	out, err := decodeResponse(body)
	if err != nil {
		return nil, false
	}
	return out, true
}

// readSSE consumes "data:" frames until a structured result, an
// "event: done" line or end of stream.
//
// A frame carrying result or error is returned as the response. A frame of
// the form {"type":"result","content":X} becomes {"result": X}. Other frames
// are collected; if any were, they are returned as the result, joined with
// newlines when every frame was plain text. Nothing collected yields a nil
// response.
func readSSE(r io.Reader) (*Response, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)

	var (
		collected []any
		texts     []string
		allText   = true
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "event: done" {
			break
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}

		if resp, value, isJSON := decodeFrame([]byte(data)); resp != nil {
			return resp, nil
		} else if isJSON {
			allText = false
			collected = append(collected, value)
			continue
		}
		texts = append(texts, data)
		collected = append(collected, data)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(collected) == 0 {
		return nil, nil
	}

	var result any = collected
	if allText {
		result = strings.Join(texts, "\n")
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{Result: raw}, nil
}

// decodeFrame interprets one data payload. It returns a response when the
// frame terminates the call, otherwise the decoded value and whether the
// payload was JSON at all.
func decodeFrame(data []byte) (*Response, any, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err == nil && fields != nil {
		_, hasResult := fields["result"]
		_, hasError := fields["error"]
		if hasResult || hasError {
			if resp, err := responseFromFields(fields); err == nil {
				return resp, nil, true
			}
		}

		var typ string
		_ = json.Unmarshal(fields["type"], &typ)
		if typ == "result" {
			content := fields["content"]
			if content == nil {
				content = json.RawMessage("{}")
			}
			return &Response{Result: bytes.Clone(content)}, nil, true
		}
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, nil, false
	}
	return nil, value, true
}
