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

package jq

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// refPattern matches a whole argument value of the form
// "{{ steps[N] }}" or "{{ steps[N] | <jq> }}".
var refPattern = regexp.MustCompile(`^\s*\{\{\s*steps\[(\d+)\]\s*(?:\|\s*(.*?))?\s*\}\}\s*$`)

// Ref is a reference to the output of an earlier step.
type Ref struct {
	// Step is the 1-based index of the referenced step.
	Step int

	// Expression is applied to the step's output. Empty means the whole output.
	Expression string
}

// ParseRef reports whether s is a step reference.
func ParseRef(s string) (Ref, bool) {
	m := refPattern.FindStringSubmatch(s)
	if m == nil {
		return Ref{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Ref{}, false
	}
	return Ref{Step: n, Expression: strings.TrimSpace(m[2])}, true
}

// String renders the reference in its source form.
func (r Ref) String() string {
	if r.Expression == "" {
		return fmt.Sprintf("{{ steps[%d] }}", r.Step)
	}
	return fmt.Sprintf("{{ steps[%d] | %s }}", r.Step, r.Expression)
}

// StepOutputs looks up the decoded output of a 1-based step. ok is false when
// the step has not run or did not succeed.
type StepOutputs func(step int) (output any, ok bool)

// RefError is a reference that could not be resolved.
type RefError struct {
	Arg    string
	Ref    Ref
	Reason string
	Cause  error
}

func (e *RefError) Error() string {
	msg := fmt.Sprintf("argument %q: cannot resolve %s: %s", e.Arg, e.Ref, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RefError) Unwrap() error { return e.Cause }

// ResolveArgs returns a copy of args with every top-level string reference
// replaced by its value. The first failing reference aborts resolution.
func (e *Executor) ResolveArgs(ctx context.Context, args map[string]any, outputs StepOutputs) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for name, value := range args {
		s, isString := value.(string)
		if !isString {
			out[name] = value
			continue
		}
		ref, isRef := ParseRef(s)
		if !isRef {
			out[name] = value
			continue
		}

		data, ok := outputs(ref.Step)
		if !ok {
			return nil, &RefError{Arg: name, Ref: ref, Reason: "step has no output"}
		}
		resolved, err := e.Execute(ctx, ref.Expression, data)
		if err != nil {
			return nil, &RefError{Arg: name, Ref: ref, Reason: "jq failed", Cause: err}
		}
		out[name] = resolved
	}
	return out, nil
}

// HasRefs reports whether any top-level argument is a step reference.
func HasRefs(args map[string]any) bool {
	for _, v := range args {
		if s, ok := v.(string); ok {
			if _, isRef := ParseRef(s); isRef {
				return true
			}
		}
	}
	return false
}
