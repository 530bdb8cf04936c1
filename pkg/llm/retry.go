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

package llm

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"

	pkgerrors "github.com/tombee/mcporch/pkg/errors"
)

// RetryPolicy controls how a Retrying provider backs off.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps a single wait.
	MaxDelay time.Duration

	// Jitter randomizes each wait by up to this fraction.
	Jitter float64

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsRetryable.
	Retryable func(error) bool

	// Logger receives one WARN line per retry.
	Logger *slog.Logger
}

// DefaultRetryPolicy retries twice, starting at half a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Jitter:       0.1,
	}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = p.Jitter
	b.Multiplier = 2
	b.Reset()
	return b
}

// Retrying wraps a provider and retries transient failures with
// exponential backoff.
type Retrying struct {
	Provider
	policy RetryPolicy
}

// WithRetry wraps p with policy.
func WithRetry(p Provider, policy RetryPolicy) *Retrying {
	if policy.Retryable == nil {
		policy.Retryable = IsRetryable
	}
	if policy.Logger == nil {
		policy.Logger = slog.Default()
	}
	return &Retrying{Provider: p, policy: policy}
}

// Unwrap returns the wrapped provider.
func (r *Retrying) Unwrap() Provider {
	return r.Provider
}

// Complete calls the wrapped provider until it succeeds, fails permanently,
// runs out of retries or ctx ends.
func (r *Retrying) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	attempt := 0
	op := func() (*CompletionResponse, error) {
		attempt++
		resp, err := r.Provider.Complete(ctx, req)
		if err != nil && !r.policy.Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(r.policy.backOff()),
		backoff.WithMaxTries(uint(r.policy.MaxRetries+1)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			r.policy.Logger.Warn("retrying completion",
				slog.String("provider", r.Name()),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", err))
		}),
	)
}

// IsRetryable reports whether err is transient: a classified error that
// says so (provider 5xx and 429, timeouts) or a network timeout. Context
// cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if _, retryable, ok := pkgerrors.Classify(err); ok {
		return retryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
