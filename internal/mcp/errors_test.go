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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	mcperrors "github.com/tombee/mcporch/pkg/errors"
)

func TestError_IsMatchesKindSentinels(t *testing.T) {
	err := fmt.Errorf("connect: %w", NewError(KindTimeout, "probe /mcp", context.DeadlineExceeded))

	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrConnectionFailed)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, "timeout: probe /mcp: context deadline exceeded", errors.Unwrap(err).Error())
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindHTTPError, Status: 503, Message: "POST /mcp"}
	assert.Equal(t, "http_error (HTTP 503): POST /mcp", err.Error())
	assert.Equal(t, "not_initialized", ErrNotInitialized.Error())
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		err  *Error
		want bool
	}{
		{&Error{Kind: KindTimeout}, true},
		{&Error{Kind: KindConnectionFailed}, true},
		{&Error{Kind: KindConnectionClosed}, true},
		{&Error{Kind: KindHTTPError, Status: 502}, true},
		{&Error{Kind: KindHTTPError, Status: 429}, true},
		{&Error{Kind: KindHTTPError, Status: 404}, false},
		{&Error{Kind: KindProtocolError}, false},
		{&Error{Kind: KindNotImplemented}, false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.IsRetryable())
		})
	}
}

func TestError_Classify(t *testing.T) {
	errType, retryable, ok := mcperrors.Classify(fmt.Errorf("wrapped: %w", &Error{Kind: KindHTTPError, Status: 500}))
	assert.True(t, ok)
	assert.Equal(t, "http_error", errType)
	assert.True(t, retryable)
}

func TestErrorResult(t *testing.T) {
	res := &ErrorResult{Kind: KindToolError, Message: "boom"}
	assert.Equal(t, "tool_error: boom", res.Error())
	assert.ErrorIs(t, res, ErrToolError)
	assert.NotErrorIs(t, res, ErrNoResponse)
	assert.Equal(t, KindToolError, KindOf(fmt.Errorf("step 2: %w", res)))
	assert.Equal(t, "no_response", (&ErrorResult{Kind: KindNoResponse}).Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, KindTimeout, KindOf(fmt.Errorf("x: %w", context.DeadlineExceeded)))
}

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "i/o timeout" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return true }

var _ net.Error = timeoutNetErr{}

func TestTransportError(t *testing.T) {
	ctx := context.Background()

	existing := NewError(KindHTTPError, "already classified", nil)
	assert.Same(t, existing, transportError(ctx, KindConnectionFailed, "x", fmt.Errorf("w: %w", existing)))

	assert.Equal(t, KindTimeout, transportError(ctx, KindConnectionFailed, "x", timeoutNetErr{}).Kind)
	assert.Equal(t, KindTimeout, transportError(ctx, KindConnectionFailed, "x", context.DeadlineExceeded).Kind)
	assert.Equal(t, KindConnectionFailed, transportError(ctx, KindConnectionFailed, "x", errors.New("refused")).Kind)

	expired, cancel := context.WithTimeout(ctx, time.Nanosecond)
	defer cancel()
	<-expired.Done()
	assert.Equal(t, KindTimeout, transportError(expired, KindConnectionFailed, "x", errors.New("read failed")).Kind)
}
