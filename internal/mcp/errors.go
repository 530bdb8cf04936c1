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
	"net/http"
)

// ErrorKind classifies a failure so callers can branch without parsing text.
type ErrorKind string

const (
	KindConnectionFailed   ErrorKind = "connection_failed"
	KindProtocolUndetected ErrorKind = "protocol_undetected"
	KindTimeout            ErrorKind = "timeout"
	KindHTTPError          ErrorKind = "http_error"
	KindProtocolError      ErrorKind = "protocol_error"
	KindToolError          ErrorKind = "tool_error"
	KindNoResponse         ErrorKind = "no_response"
	KindNotInitialized     ErrorKind = "not_initialized"
	KindOracleUnavailable  ErrorKind = "oracle_unavailable"
	KindConnectionClosed   ErrorKind = "connection_closed"
	KindNotImplemented     ErrorKind = "not_implemented"
)

// Sentinels for errors.Is. They match any *Error or *ErrorResult of the same
// kind.
var (
	ErrConnectionFailed   = &Error{Kind: KindConnectionFailed}
	ErrProtocolUndetected = &Error{Kind: KindProtocolUndetected}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrHTTPError          = &Error{Kind: KindHTTPError}
	ErrProtocolError      = &Error{Kind: KindProtocolError}
	ErrToolError          = &Error{Kind: KindToolError}
	ErrNoResponse         = &Error{Kind: KindNoResponse}
	ErrNotInitialized     = &Error{Kind: KindNotInitialized}
	ErrOracleUnavailable  = &Error{Kind: KindOracleUnavailable}
	ErrConnectionClosed   = &Error{Kind: KindConnectionClosed}
	ErrNotImplemented     = &Error{Kind: KindNotImplemented}
)

// Error is a structured MCP failure.
type Error struct {
	// Kind is the failure category.
	Kind ErrorKind

	// Message describes the failure.
	Message string

	// Status is the HTTP status for KindHTTPError.
	Status int

	// Cause is the underlying error, if any.
	Cause error
}

// NewError creates an *Error of the given kind.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return isSentinel(t) && t.Kind == e.Kind
}

// ErrorType implements pkg/errors.ErrorClassifier.
func (e *Error) ErrorType() string {
	return string(e.Kind)
}

// IsRetryable implements pkg/errors.ErrorClassifier.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnectionFailed, KindConnectionClosed:
		return true
	case KindHTTPError:
		return e.Status >= 500 || e.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

func isSentinel(e *Error) bool {
	return e.Message == "" && e.Status == 0 && e.Cause == nil
}

// ErrorResult is a tool invocation that reached the server but did not
// produce a result. It is returned as an error by Client.InvokeTool.
type ErrorResult struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (r *ErrorResult) Error() string {
	if r.Message == "" {
		return string(r.Kind)
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

// Is matches the kind sentinels.
func (r *ErrorResult) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && isSentinel(t) && t.Kind == r.Kind
}

// KindOf extracts the ErrorKind from err. Context deadline errors map to
// KindTimeout. It returns "" for errors that carry no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var mcpErr *Error
	if errors.As(err, &mcpErr) {
		return mcpErr.Kind
	}
	var result *ErrorResult
	if errors.As(err, &result) {
		return result.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return ""
}

// transportError converts a low-level failure into an *Error, mapping
// deadline expiry to KindTimeout and everything else to fallback.
func transportError(ctx context.Context, fallback ErrorKind, message string, err error) *Error {
	var mcpErr *Error
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return NewError(KindTimeout, message, err)
	}
	return NewError(fallback, message, err)
}
