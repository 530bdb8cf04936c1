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

import "context"

// Discover connects to baseURL, snapshots its capabilities and closes the
// session. When the handshake did not list tools, an explicit tools/list is
// attempted before giving up on the catalog.
func Discover(ctx context.Context, baseURL string, opts ...ClientOption) (Capabilities, error) {
	client := NewClient(baseURL, opts...)
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return Capabilities{}, err
	}

	caps := client.Capabilities()
	if len(caps.Tools) == 0 {
		if _, err := client.ListTools(ctx); err == nil {
			caps = client.Capabilities()
		}
	}
	return caps, nil
}
