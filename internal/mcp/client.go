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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	internallog "github.com/tombee/mcporch/internal/log"
	"github.com/tombee/mcporch/pkg/httpclient"
)

const (
	// DefaultRequestTimeout bounds handshake and listing calls.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultToolTimeout bounds a single tools/call.
	DefaultToolTimeout = 60 * time.Second
)

// ClientVersion is reported in the initialize handshake. The CLI overrides it
// with the build version.
var ClientVersion = "dev"

func clientInfo() mcpgo.Implementation {
	return mcpgo.Implementation{Name: "mcporch", Version: ClientVersion}
}

// Client owns one session with one server. It is not meant to be shared by
// concurrent tasks; calls are serialized.
type Client struct {
	baseURL        string
	detector       *Detector
	fallback       FallbackPolicy
	vendors        *VendorTable
	transportOpts  TransportOptions
	newTransport   TransportFactory
	requestTimeout time.Duration
	toolTimeout    time.Duration
	logger         *slog.Logger
	preset         *Endpoint

	// callMu keeps one request in flight.
	callMu sync.Mutex

	mu          sync.RWMutex
	endpoint    Endpoint
	transport   Transport
	initialized bool
	serverInfo  map[string]any
	tools       []ToolDescriptor
	resources   []ResourceDescriptor
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDetector replaces the endpoint detector.
func WithDetector(d *Detector) ClientOption {
	return func(c *Client) { c.detector = d }
}

// WithEndpoint skips detection and uses ep as resolved.
func WithEndpoint(ep Endpoint) ClientOption {
	return func(c *Client) { c.preset = &ep }
}

// WithFallbackPolicy sets the policy applied when detection finds nothing.
func WithFallbackPolicy(p FallbackPolicy) ClientOption {
	return func(c *Client) { c.fallback = p }
}

// WithVendorTable sets the vendor table used for fallback endpoints and
// static catalogs. A nil table disables both.
func WithVendorTable(t *VendorTable) ClientOption {
	return func(c *Client) { c.vendors = t }
}

// WithHTTPClient sets the HTTP client used by detection and the HTTP
// dialects.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.transportOpts.HTTPClient = hc }
}

// WithHeader adds headers to every request, e.g. for authentication.
func WithHeader(h http.Header) ClientOption {
	return func(c *Client) { c.transportOpts.Header = h.Clone() }
}

// WithWebSocketDialer sets the WebSocket dialer.
func WithWebSocketDialer(d *websocket.Dialer) ClientOption {
	return func(c *Client) { c.transportOpts.Dialer = d }
}

// WithRequestTimeout sets the timeout for handshake and listing calls.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithToolTimeout sets the timeout for each tools/call.
func WithToolTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.toolTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTransportFactory replaces transport construction. Used by tests.
func WithTransportFactory(f TransportFactory) ClientOption {
	return func(c *Client) { c.newTransport = f }
}

// NewClient creates a client for baseURL. Nothing touches the network until
// Connect.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        baseURL,
		vendors:        DefaultVendorTable(),
		newTransport:   NewTransport,
		requestTimeout: DefaultRequestTimeout,
		toolTimeout:    DefaultToolTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger = internallog.WithComponent(c.logger, "mcp_client").With(internallog.EndpointKey, baseURL)
	if c.transportOpts.HTTPClient == nil {
		c.transportOpts.HTTPClient = defaultHTTPClient(c.logger)
	}
	c.transportOpts.Logger = c.logger
	if c.detector == nil {
		c.detector = NewDetector(WithProbeClient(c.transportOpts.HTTPClient), WithDetectorLogger(c.logger))
	}
	if c.fallback == nil {
		c.fallback = VendorFallback{Table: c.vendors}
	}
	c.endpoint = Endpoint{BaseURL: baseURL, Protocol: ProtocolUnknown, WorkingURL: baseURL}
	return c
}

// defaultHTTPClient never retries: a tools/call that reached the server must
// not run twice. Timeouts come from per-call contexts.
func defaultHTTPClient(logger *slog.Logger) *http.Client {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 0
	cfg.RetryAttempts = 0
	cfg.Logger = logger
	hc, err := httpclient.New(cfg)
	if err != nil {
		return http.DefaultClient
	}
	return hc
}

// Connect detects the endpoint, applies the fallback policy when detection
// finds nothing, opens the transport and performs the handshake. Any previous
// session is closed first.
func (c *Client) Connect(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "mcp.connect")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	_ = c.Close()

	ep, err := c.resolve(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("mcp.protocol", string(ep.Protocol)),
		attribute.String("mcp.endpoint", ep.WorkingURL),
	)

	tr, err := c.newTransport(ctx, ep, c.transportOpts)
	if err != nil {
		if KindOf(err) == KindProtocolUndetected {
			return err
		}
		return NewError(KindConnectionFailed, "open "+string(ep.Protocol)+" transport", err)
	}

	c.mu.Lock()
	c.endpoint = ep
	c.transport = tr
	c.mu.Unlock()

	if err := c.Initialize(ctx); err != nil {
		_ = c.Close()
		return NewError(KindConnectionFailed, "initialize "+ep.WorkingURL, err)
	}

	c.logger.Info("connected", internallog.ProtocolKey, ep.Protocol, "working_url", ep.WorkingURL)
	return nil
}

func (c *Client) resolve(ctx context.Context) (Endpoint, error) {
	if c.preset != nil {
		return *c.preset, nil
	}

	ep, err := c.detector.Detect(ctx, c.baseURL)
	if err != nil {
		if KindOf(err) == KindProtocolUndetected {
			return Endpoint{}, err
		}
		return Endpoint{}, NewError(KindConnectionFailed, "detect "+c.baseURL, err)
	}
	if ep.Protocol != ProtocolUnknown {
		return ep, nil
	}

	fb, ok := c.fallback.Resolve(c.baseURL)
	if !ok {
		return Endpoint{}, NewError(KindProtocolUndetected, "no endpoint detected at "+c.baseURL, nil)
	}
	c.logger.Warn("detection found nothing, using fallback endpoint",
		internallog.ProtocolKey, fb.Protocol, "working_url", fb.WorkingURL)
	return fb, nil
}

// Connected reports whether the session is initialized.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// Endpoint returns the resolved endpoint.
func (c *Client) Endpoint() Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

// Initialize performs the MCP handshake on the open transport. On success
// the server info is stored and the catalog is listed eagerly for advertised
// capabilities. SSE servers that reject or ignore the handshake are treated
// as initialized anyway and their tools are listed.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": mcpgo.LATEST_PROTOCOL_VERSION,
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": true},
			"resources": map[string]any{"listChanged": true},
			"prompts":   map[string]any{"listChanged": true},
		},
		"clientInfo": clientInfo(),
	}

	resp, err := c.call(ctx, c.requestTimeout, string(mcpgo.MethodInitialize), params)
	if err == nil && resp.Classify() == ResponseResult {
		info := map[string]any{}
		if jerr := json.Unmarshal(resp.Result, &info); jerr != nil || info == nil {
			info = map[string]any{}
		}

		c.mu.Lock()
		c.serverInfo = info
		c.initialized = true
		c.mu.Unlock()

		caps, _ := info["capabilities"].(map[string]any)
		if _, ok := caps["tools"]; ok {
			if _, lerr := c.ListTools(ctx); lerr != nil {
				c.logger.Warn("tools/list failed after handshake", internallog.Error(lerr))
			}
		}
		if _, ok := caps["resources"]; ok {
			if _, lerr := c.ListResources(ctx); lerr != nil {
				c.logger.Warn("resources/list failed after handshake", internallog.Error(lerr))
			}
		}
		return nil
	}

	if c.protocol() == ProtocolSSE {
		c.logger.Warn("handshake failed on SSE server, continuing without it", "cause", describeFailure(resp, err))
		c.mu.Lock()
		c.initialized = true
		c.mu.Unlock()
		if _, lerr := c.ListTools(ctx); lerr != nil {
			c.logger.Warn("tools/list failed", internallog.Error(lerr))
		}
		return nil
	}

	if err != nil {
		return err
	}
	if resp.Classify() == ResponseError {
		return NewError(KindProtocolError, "initialize rejected", resp.Error)
	}
	return NewError(KindNoResponse, "initialize returned no result", nil)
}

func describeFailure(resp *Response, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case resp.Classify() == ResponseError:
		return resp.Error.Error()
	default:
		return "no result"
	}
}

// ListTools issues tools/list and stores the catalog. When the server lists
// nothing, a matching vendor's static catalog is used instead; a non-empty
// listing is never replaced and a failed call is returned as is.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := c.call(ctx, c.requestTimeout, string(mcpgo.MethodToolsList), map[string]any{})

	var tools []ToolDescriptor
	if err == nil && resp.Classify() == ResponseResult {
		var payload struct {
			Tools []ToolDescriptor `json:"tools"`
		}
		if jerr := json.Unmarshal(resp.Result, &payload); jerr != nil {
			err = NewError(KindProtocolError, "decode tools/list result", jerr)
		}
		tools = payload.Tools
	} else if err == nil {
		err = NewError(KindNoResponse, "tools/list returned no result", rpcCause(resp))
	}

	if err == nil && len(tools) == 0 {
		if v, ok := c.vendors.Match(c.Endpoint().WorkingURL); ok && len(v.Tools) > 0 {
			c.logger.Warn("server listed no tools, using static vendor catalog",
				"vendor", v.Name, "tools", len(v.Tools))
			vendorFallbacksTotal.WithLabelValues(v.Name, "catalog").Inc()
			tools = cloneTools(v.Tools)
		}
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
	return cloneTools(tools), nil
}

// ListResources issues resources/list and stores the result.
func (c *Client) ListResources(ctx context.Context) ([]ResourceDescriptor, error) {
	resp, err := c.call(ctx, c.requestTimeout, string(mcpgo.MethodResourcesList), map[string]any{})
	if err != nil {
		return nil, err
	}
	if resp.Classify() != ResponseResult {
		return nil, NewError(KindNoResponse, "resources/list returned no result", rpcCause(resp))
	}

	var payload struct {
		Resources []ResourceDescriptor `json:"resources"`
	}
	if err := json.Unmarshal(resp.Result, &payload); err != nil {
		return nil, NewError(KindProtocolError, "decode resources/list result", err)
	}

	c.mu.Lock()
	c.resources = payload.Resources
	c.mu.Unlock()

	out := make([]ResourceDescriptor, len(payload.Resources))
	for i, r := range payload.Resources {
		out[i] = ResourceDescriptor(deepCopyMap(r))
	}
	return out, nil
}

// InvokeTool calls a tool and returns its result member verbatim. A JSON-RPC
// error comes back as *ErrorResult with KindToolError and a missing answer as
// *ErrorResult with KindNoResponse; transport failures are *Error. A result
// flagged isError by the server is still returned as a result.
func (c *Client) InvokeTool(ctx context.Context, name string, args map[string]any) (out json.RawMessage, err error) {
	if !c.Connected() {
		return nil, NewError(KindNotInitialized, "invoke "+name+" before initialize", nil)
	}
	if args == nil {
		args = map[string]any{}
	}

	ctx, span := tracer.Start(ctx, "mcp.tools/call")
	span.SetAttributes(attribute.String("mcp.tool", name))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		toolCallsTotal.WithLabelValues(outcome).Inc()
		span.End()
	}()

	resp, err := c.call(ctx, c.toolTimeout, string(mcpgo.MethodToolsCall), map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}

	switch resp.Classify() {
	case ResponseResult:
		return resp.Result, nil
	case ResponseError:
		return nil, &ErrorResult{Kind: KindToolError, Message: resp.Error.Error()}
	default:
		return nil, &ErrorResult{Kind: KindNoResponse, Message: "no response from server"}
	}
}

// Capabilities returns a deep-copied snapshot of the session.
func (c *Client) Capabilities() Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Capabilities{
		Protocol:    c.endpoint.Protocol,
		Endpoint:    c.endpoint.WorkingURL,
		Initialized: c.initialized,
		ServerInfo:  c.serverInfo,
		Tools:       c.tools,
		Resources:   c.resources,
	}
	if snap.ServerInfo == nil {
		snap.ServerInfo = map[string]any{}
	}
	return snap.Clone()
}

// Close releases the transport and clears the initialized latch. It is safe
// to call any number of times, including before Connect.
func (c *Client) Close() error {
	c.mu.Lock()
	tr := c.transport
	c.transport = nil
	c.initialized = false
	c.mu.Unlock()

	if tr == nil {
		return nil
	}
	if err := tr.Close(); err != nil {
		c.logger.Debug("transport close failed", internallog.Error(err))
		return err
	}
	return nil
}

func (c *Client) protocol() Protocol {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint.Protocol
}

// call sends one request with its own timeout. A nil response with a nil
// error means the transport produced nothing.
func (c *Client) call(ctx context.Context, timeout time.Duration, method string, params any) (*Response, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.mu.RLock()
	tr := c.transport
	ep := c.endpoint
	c.mu.RUnlock()
	if tr == nil {
		return nil, NewError(KindConnectionClosed, "no open transport", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := NewRequest(method, params)
	ctx = httpclient.WithRequestID(ctx, req.ID)

	var resp *Response
	start := time.Now()
	err := internallog.Timed(c.logger, &internallog.Call{
		Method:    method,
		Protocol:  string(ep.Protocol),
		URL:       ep.WorkingURL,
		RequestID: req.ID,
	}, func() error {
		var sendErr error
		resp, sendErr = tr.Send(ctx, req)
		return sendErr
	})
	recordRequest(ep.Protocol, method, start, err)
	if err != nil {
		var mcpErr *Error
		if !errors.As(err, &mcpErr) {
			err = transportError(ctx, KindConnectionFailed, method, err)
		}
		return nil, err
	}
	if resp == nil {
		resp = &Response{}
	}
	return resp, nil
}

func rpcCause(resp *Response) error {
	if resp != nil && resp.Error != nil {
		return resp.Error
	}
	return nil
}

func cloneTools(tools []ToolDescriptor) []ToolDescriptor {
	out := make([]ToolDescriptor, len(tools))
	for i, t := range tools {
		out[i] = t.clone()
	}
	return out
}

// String identifies the client in logs.
func (c *Client) String() string {
	ep := c.Endpoint()
	return fmt.Sprintf("mcp.Client(%s via %s)", ep.WorkingURL, ep.Protocol)
}
