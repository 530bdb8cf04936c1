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
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// NewRequest builds a request with a fresh random id.
func NewRequest(method string, params any) *Request {
	if params == nil {
		params = map[string]any{}
	}
	return &Request{
		JSONRPC: mcpgo.JSONRPC_VERSION,
		Method:  method,
		Params:  params,
		ID:      uuid.NewString(),
	}
}

// RPCError is the error member of a JSON-RPC response. Some servers send a
// bare string instead of an object; both decode.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// UnmarshalJSON accepts the standard object form and a bare string.
func (e *RPCError) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Message = s
		return nil
	}
	type plain RPCError
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		// Anything else is kept verbatim as the message.
		e.Message = string(data)
		return nil
	}
	*e = RPCError(p)
	return nil
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
	}
	return e.Message
}

// ResponseClass tells which member a response carries.
type ResponseClass int

const (
	// ResponseNone means neither result nor error was present.
	ResponseNone ResponseClass = iota
	// ResponseResult means the result member was present (possibly null).
	ResponseResult
	// ResponseError means the error member was present.
	ResponseError
)

func (c ResponseClass) String() string {
	switch c {
	case ResponseResult:
		return "result"
	case ResponseError:
		return "error"
	default:
		return "none"
	}
}

// Response is a decoded JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Classify reports which member the response carries. A result wins over an
// error when a server sends both.
func (r *Response) Classify() ResponseClass {
	switch {
	case r == nil:
		return ResponseNone
	case r.Result != nil:
		return ResponseResult
	case r.Error != nil:
		return ResponseError
	default:
		return ResponseNone
	}
}

// decodeResponse parses body as a JSON object. Presence of the result key is
// preserved even when its value is null.
func decodeResponse(body []byte) (*Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &fields); err != nil {
		return nil, NewError(KindProtocolError, "response is not a JSON object", err)
	}
	return responseFromFields(fields)
}

func responseFromFields(fields map[string]json.RawMessage) (*Response, error) {
	resp := &Response{ID: fields["id"]}
	if v, ok := fields["jsonrpc"]; ok {
		_ = json.Unmarshal(v, &resp.JSONRPC)
	}
	if v, ok := fields["result"]; ok {
		resp.Result = append(json.RawMessage(nil), v...)
	}
	if v, ok := fields["error"]; ok && string(v) != "null" {
		resp.Error = &RPCError{}
		if err := json.Unmarshal(v, resp.Error); err != nil {
			return nil, NewError(KindProtocolError, "malformed error member", err)
		}
	}
	return resp, nil
}

// looksLikeJSONRPC reports whether body is an object carrying any of the
// jsonrpc, result or error keys.
func looksLikeJSONRPC(body []byte) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &fields); err != nil {
		return false
	}
	for _, key := range []string{"jsonrpc", "result", "error"} {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}
