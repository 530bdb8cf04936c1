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

package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/tombee/mcporch/pkg/errors"
)

// File is the servers file format.
//
//	servers:
//	  - name: context7
//	    endpoint: https://mcp.context7.com
//	    github_url: https://github.com/upstash/context7
type File struct {
	Servers []Server `yaml:"servers"`
}

// ParseFile decodes a servers file. Unknown keys are rejected.
func ParseFile(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to parse servers file: %w", err)
	}
	for i, s := range f.Servers {
		if s.Endpoint == "" && s.GitHubURL == "" {
			return nil, &pkgerrors.ValidationError{
				Field:      fmt.Sprintf("servers[%d]", i),
				Message:    fmt.Sprintf("server %q has neither endpoint nor github_url", s.Name),
				Suggestion: "set endpoint for a running server",
			}
		}
	}
	return &f, nil
}

// LoadFile reads path and registers every server it lists. Servers with an
// endpoint go into the registry; repository-only entries go into the
// discovery cache. It returns the loaded servers.
func (r *Registry) LoadFile(path string) ([]Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read servers file: %w", err)
	}
	f, err := ParseFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	loaded := make([]Server, 0, len(f.Servers))
	for i, s := range f.Servers {
		var (
			out Server
			err error
		)
		if s.Endpoint != "" {
			out, err = r.Register(s)
		} else {
			out, err = r.Cache(s)
		}
		if err != nil {
			return loaded, fmt.Errorf("%s: servers[%d]: %w", path, i, err)
		}
		loaded = append(loaded, out)
	}
	return loaded, nil
}
