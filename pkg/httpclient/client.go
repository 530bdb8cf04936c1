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
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth configures the OAuth 2.0 client credentials grant for servers that
// require a bearer token.
type OAuth struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Validate reports the first missing field.
func (o *OAuth) Validate() error {
	switch {
	case o.TokenURL == "":
		return fmt.Errorf("oauth token_url is required")
	case o.ClientID == "":
		return fmt.Errorf("oauth client_id is required")
	case o.ClientSecret == "":
		return fmt.Errorf("oauth client_secret is required")
	}
	return nil
}

// wrap adds an Authorization header to every request sent through next.
// Token requests also go through next, so they are logged like any other.
func (o *OAuth) wrap(next http.RoundTripper) http.RoundTripper {
	cc := &clientcredentials.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		TokenURL:     o.TokenURL,
		Scopes:       o.Scopes,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: next})
	return &oauth2.Transport{Source: cc.TokenSource(ctx), Base: next}
}

// New builds a client from cfg. Round trips pass through, outermost first:
// retry (when RetryAttempts > 0), OAuth (when configured), logging, and a
// pooled http.Transport.
func New(cfg Config) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var rt http.RoundTripper = newLoggingTransport(pooledTransport(cfg), cfg.UserAgent, logger)
	if cfg.OAuth != nil {
		rt = cfg.OAuth.wrap(rt)
	}
	if cfg.RetryAttempts > 0 {
		rt = newRetryTransport(rt, cfg)
	}
	return &http.Client{Transport: rt, Timeout: cfg.Timeout}, nil
}

func pooledTransport(cfg Config) *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}
