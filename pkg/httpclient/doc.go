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

// Package httpclient builds the *http.Client shared by the MCP transports,
// the endpoint detector and the LLM providers.
//
//	retryTransport -> oauth2.Transport -> loggingTransport -> http.Transport
//
// The logging layer sets the User-Agent, forwards a context request ID as
// X-Request-ID and logs each round trip with secrets stripped from the URL.
// The OAuth layer is present only when client credentials are configured.
//
// Retries apply to idempotent methods unless AllowNonIdempotentRetry is
// set. The MCP transports leave it off: a tools/call that reached the
// server must not run twice.
package httpclient
