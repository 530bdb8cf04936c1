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
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	pkgerrors "github.com/tombee/mcporch/pkg/errors"
)

// queryEnv is what a query expression sees for one server.
type queryEnv struct {
	ID          string   `expr:"id"`
	Name        string   `expr:"name"`
	Description string   `expr:"description"`
	Status      string   `expr:"status"`
	Method      string   `expr:"method"`
	Endpoint    string   `expr:"endpoint"`
	GitHubURL   string   `expr:"github_url"`
	Error       string   `expr:"error"`
	Registered  bool     `expr:"registered"`
	Protocol    string   `expr:"protocol"`
	Tools       []string `expr:"tools"`
}

// Query is a compiled boolean filter over servers, for example
//
//	status == "deployed" && len(tools) > 3
//	"search" in tools || name startsWith "git"
type Query struct {
	source  string
	program *vm.Program
}

// CompileQuery parses and type-checks source.
func CompileQuery(source string) (*Query, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, &pkgerrors.ValidationError{Field: "query", Message: "query cannot be empty"}
	}
	program, err := expr.Compile(source, expr.Env(queryEnv{}), expr.AsBool())
	if err != nil {
		return nil, &pkgerrors.ValidationError{
			Field:      "query",
			Message:    fmt.Sprintf("failed to compile query: %s", err),
			Suggestion: "fields are id, name, description, status, method, endpoint, github_url, error, registered, protocol and tools",
		}
	}
	return &Query{source: source, program: program}, nil
}

// String returns the query source.
func (q *Query) String() string {
	return q.source
}

func (q *Query) match(s Server, registered bool) (bool, error) {
	env := queryEnv{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Status:      string(s.Status),
		Method:      string(s.DeployMethod),
		Endpoint:    s.Endpoint,
		GitHubURL:   s.GitHubURL,
		Error:       s.Error,
		Registered:  registered,
		Tools:       []string{},
	}
	if s.Capabilities != nil {
		env.Protocol = string(s.Capabilities.Protocol)
		env.Tools = s.Capabilities.ToolNames()
	}

	out, err := expr.Run(q.program, env)
	if err != nil {
		return false, fmt.Errorf("query %q on server %s: %w", q.source, s.ID, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Select lists the servers q matches, in List order.
func (r *Registry) Select(q *Query) ([]Server, error) {
	all := r.List()
	out := all[:0]
	for _, s := range all {
		ok, err := q.match(s, r.IsRegistered(s.ID))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, nil
}
