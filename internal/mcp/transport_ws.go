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
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport keeps one connection open for the session. Each call writes one
// message and reads one message; the mutex keeps a single call in flight.
type wsTransport struct {
	url    string
	conn   *websocket.Conn
	logger *slog.Logger
	closed atomic.Bool

	mu sync.Mutex
}

func dialWebSocket(ctx context.Context, url string, opts TransportOptions) (*wsTransport, error) {
	conn, resp, err := opts.Dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		e := transportError(ctx, KindConnectionFailed, "dial "+url, err)
		if resp != nil && e.Kind == KindConnectionFailed {
			e.Status = resp.StatusCode
		}
		return nil, e
	}
	return &wsTransport{url: url, conn: conn, logger: opts.Logger}, nil
}

func (t *wsTransport) Protocol() Protocol { return ProtocolWebSocket }

func (t *wsTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return nil, NewError(KindConnectionClosed, "websocket closed", nil)
	}

	var deadline time.Time
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	_ = t.conn.SetWriteDeadline(deadline)
	_ = t.conn.SetReadDeadline(deadline)

	// Cancellation without a deadline still has to unblock the read.
	stop := context.AfterFunc(ctx, func() {
		now := time.Now()
		_ = t.conn.SetReadDeadline(now)
		_ = t.conn.SetWriteDeadline(now)
	})
	defer stop()

	if err := t.conn.WriteJSON(req); err != nil {
		return nil, t.fail(ctx, "write", err)
	}

	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, t.fail(ctx, "read", err)
	}
	return decodeResponse(data)
}

// fail classifies an I/O error. The connection is unusable after any read or
// write error, so it is closed.
func (t *wsTransport) fail(ctx context.Context, op string, err error) *Error {
	wasClosed := t.closed.Swap(true)
	if !wasClosed {
		_ = t.conn.Close()
	}

	msg := fmt.Sprintf("websocket %s %s", op, t.url)
	var closeErr *websocket.CloseError
	switch {
	case wasClosed, errors.As(err, &closeErr), errors.Is(err, net.ErrClosed):
		return NewError(KindConnectionClosed, msg, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return NewError(KindConnectionClosed, msg, ctx.Err())
	default:
		return transportError(ctx, KindConnectionClosed, msg, err)
	}
}

// Close closes the connection. It is safe to call concurrently with Send and
// more than once.
func (t *wsTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if err := t.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
