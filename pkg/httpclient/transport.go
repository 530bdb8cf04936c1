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

package httpclient

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type requestIDKey struct{}

// WithRequestID tags ctx so that requests made with it carry id in the
// X-Request-ID header.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// loggingTransport fills in default headers and logs every round trip at
// debug, or at warn for server errors.
type loggingTransport struct {
	next      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

func newLoggingTransport(next http.RoundTripper, userAgent string, logger *slog.Logger) *loggingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{next: next, userAgent: userAgent, logger: logger}
}

// withDefaults returns req, or a clone of it when headers must be added. A
// RoundTripper may not modify the caller's request.
func (t *loggingTransport) withDefaults(req *http.Request) *http.Request {
	id := RequestIDFromContext(req.Context())
	needUA := t.userAgent != "" && req.Header.Get("User-Agent") == ""
	needID := id != "" && req.Header.Get("X-Request-ID") == ""
	if !needUA && !needID {
		return req
	}
	req = req.Clone(req.Context())
	if needUA {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if needID {
		req.Header.Set("X-Request-ID", id)
	}
	return req
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = t.withDefaults(req)
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("url", sanitizeURL(req.URL)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if id := req.Header.Get("X-Request-ID"); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}

	if err != nil {
		t.logger.LogAttrs(req.Context(), slog.LevelDebug, "http request failed", append(attrs, slog.String("error", err.Error()))...)
		return nil, err
	}
	level := slog.LevelDebug
	if resp.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	t.logger.LogAttrs(req.Context(), level, "http request", append(attrs, slog.Int("status", resp.StatusCode))...)
	return resp, nil
}
