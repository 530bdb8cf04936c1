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
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// retryTransport replays a request on 5xx, 408 and 429 responses and on
// network errors, backing off exponentially between attempts.
type retryTransport struct {
	next          http.RoundTripper
	tries         uint
	initial       time.Duration
	max           time.Duration
	nonIdempotent bool
}

func newRetryTransport(next http.RoundTripper, cfg Config) *retryTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &retryTransport{
		next:          next,
		tries:         uint(cfg.RetryAttempts + 1),
		initial:       cfg.RetryBackoff,
		max:           cfg.MaxBackoff,
		nonIdempotent: cfg.AllowNonIdempotentRetry,
	}
}

// statusError marks a response worth retrying.
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("retryable status %d", e.code) }

// replayable reports whether req may be sent more than once.
func (t *retryTransport) replayable(req *http.Request) bool {
	if !t.nonIdempotent && !isIdempotent(req.Method) {
		return false
	}
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func (t *retryTransport) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.initial
	b.MaxInterval = t.max
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// RoundTrip implements http.RoundTripper. When every attempt gets a
// retryable status the last response is returned unread.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.replayable(req) {
		return t.next.RoundTrip(req)
	}

	var (
		last    *http.Response
		attempt int
	)
	op := func() (*http.Response, error) {
		attempt++
		r := req
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			r = req.Clone(req.Context())
			r.Body = body
		}

		resp, err := t.next.RoundTrip(r)
		if err != nil {
			if !retryableError(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if last != nil {
			last.Body.Close()
			last = nil
		}
		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		last = resp
		if wait := parseRetryAfter(resp); wait > 0 && wait <= t.max {
			return nil, backoff.RetryAfter(int(wait.Round(time.Second) / time.Second))
		}
		return nil, &statusError{code: resp.StatusCode}
	}

	resp, err := backoff.Retry(req.Context(), op,
		backoff.WithBackOff(t.backOff()),
		backoff.WithMaxTries(t.tries),
	)
	if err == nil {
		return resp, nil
	}
	if last != nil && req.Context().Err() == nil {
		return last, nil
	}
	if last != nil {
		last.Body.Close()
	}
	return nil, err
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// parseRetryAfter reads Retry-After as seconds or an HTTP date.
func parseRetryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if s, err := strconv.Atoi(v); err == nil && s > 0 {
		return time.Duration(s) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at), 0)
	}
	return 0
}
