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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tombee/mcporch/internal/mcp"
	pkgerrors "github.com/tombee/mcporch/pkg/errors"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitTaskFailed       = 1
	ExitInvalidInput     = 2
	ExitConnectionFailed = 3
	ExitConfigError      = 4
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewInputError reports bad command-line input.
func NewInputError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidInput, Message: msg, Cause: cause}
}

// NewConfigError reports an unusable configuration.
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfigError, Message: msg, Cause: cause}
}

// NewServerError classifies a failure talking to an MCP server.
func NewServerError(msg string, cause error) *ExitError {
	code := ExitTaskFailed
	switch mcp.KindOf(cause) {
	case mcp.KindConnectionFailed, mcp.KindProtocolUndetected, mcp.KindConnectionClosed:
		code = ExitConnectionFailed
	}
	return &ExitError{Code: code, Message: msg, Cause: cause}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var verr *pkgerrors.ValidationError
	if errors.As(err, &verr) {
		return ExitInvalidInput
	}
	var cerr *pkgerrors.ConfigError
	if errors.As(err, &cerr) {
		return ExitConfigError
	}
	return ExitTaskFailed
}

// PrintError writes err and, when one is known, a suggestion for fixing it.
func PrintError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(w, RenderError(err.Error()))

	var verr *pkgerrors.ValidationError
	if errors.As(err, &verr) && verr.Suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", verr.Suggestion)
		return
	}
	var perr *pkgerrors.ProviderError
	if errors.As(err, &perr) && perr.Suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", perr.Suggestion)
	}
}

// HandleExitError prints err to stderr and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}
