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

// Package jq evaluates jq expressions against earlier step outputs so plan
// arguments can reference them.
package jq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/itchyny/gojq"
)

const (
	// DefaultTimeout bounds a single evaluation.
	DefaultTimeout = time.Second

	// DefaultMaxInputSize caps the encoded input at 10 MiB.
	DefaultMaxInputSize = 10 << 20
)

// Executor evaluates jq expressions under a time and input size budget.
// Compiled expressions are cached; an Executor is safe for concurrent use.
type Executor struct {
	timeout      time.Duration
	maxInputSize int64

	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewExecutor creates an executor. Zero values select the defaults.
func NewExecutor(timeout time.Duration, maxInputSize int64) *Executor {
	e := &Executor{
		timeout:      timeout,
		maxInputSize: maxInputSize,
		cache:        make(map[string]*gojq.Code),
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.maxInputSize <= 0 {
		e.maxInputSize = DefaultMaxInputSize
	}
	return e
}

// Execute runs expression against data. One output is returned as is,
// several as a slice and none as nil. An empty expression returns data
// unchanged.
func (e *Executor) Execute(ctx context.Context, expression string, data any) (any, error) {
	if expression == "" {
		return data, nil
	}
	code, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	input, err := e.decode(data)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var results []any
	iter := code.RunWithContext(ctx, input)
	for v, ok := iter.Next(); ok; v, ok = iter.Next() {
		if err, isErr := v.(error); isErr {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("jq timeout after %v", e.timeout)
			}
			return nil, err
		}
		results = append(results, v)
	}

	if len(results) > 1 {
		return results, nil
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return nil, nil
}

// Validate checks that expression parses and compiles.
func (e *Executor) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := e.compile(expression)
	return err
}

func (e *Executor) compile(expression string) (*gojq.Code, error) {
	e.mu.RLock()
	code, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}
	if code, err = gojq.Compile(query); err != nil {
		return nil, fmt.Errorf("jq compilation failed: %w", err)
	}

	e.mu.Lock()
	e.cache[expression] = code
	e.mu.Unlock()
	return code, nil
}

// decode enforces the size limit and turns data into the plain JSON values
// gojq works on. Go ints and structs are not among them.
func (e *Executor) decode(data any) (any, error) {
	raw, ok := data.([]byte)
	if msg, isRaw := data.(json.RawMessage); isRaw {
		raw, ok = msg, true
	}
	if !ok {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode jq input: %w", err)
		}
		raw = b
	}

	if n := int64(len(raw)); n > e.maxInputSize {
		return nil, fmt.Errorf("jq input of %d bytes exceeds maximum of %d", n, e.maxInputSize)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("jq input is not JSON: %w", err)
	}
	return out, nil
}
