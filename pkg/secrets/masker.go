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

// Package secrets masks sensitive values, such as provider API keys, in
// text before it reaches logs or terminal output.
package secrets

import (
	"io"
	"sort"
	"strings"
	"sync"
)

// MinSecretLength is the shortest value the masker will hide. Shorter values
// would mask unrelated text.
const MinSecretLength = 4

// Replacement is written in place of every masked value.
const Replacement = "***"

// Masker replaces known secret values in strings. It is safe for concurrent
// use; secrets may be added while writers are active.
type Masker struct {
	// patterns are suffixes that mark an environment variable as secret.
	patterns []string

	mu      sync.RWMutex
	secrets map[string]struct{}
	ordered []string
}

// NewMasker creates a masker with the default secret-name patterns.
func NewMasker() *Masker {
	return &Masker{
		patterns: []string{
			"_TOKEN",
			"_SECRET",
			"_KEY",
			"_PASSWORD",
			"_PASS",
			"_PWD",
		},
		secrets: make(map[string]struct{}),
	}
}

// AddSecret registers a value to mask.
func (m *Masker) AddSecret(value string) {
	if len(value) < MinSecretLength {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[value]; ok {
		return
	}
	m.secrets[value] = struct{}{}
	m.ordered = append(m.ordered, value)
	// Longest first so a secret containing another is masked whole.
	sort.SliceStable(m.ordered, func(i, j int) bool { return len(m.ordered[i]) > len(m.ordered[j]) })
}

// AddSecretsFromEnv registers the values of KEY=VALUE entries, as returned
// by os.Environ, whose key looks like a secret.
func (m *Masker) AddSecretsFromEnv(environ []string) {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if ok && m.IsSecretKey(key) {
			m.AddSecret(value)
		}
	}
}

// IsSecretKey reports whether an environment variable name looks like it
// holds a secret.
func (m *Masker) IsSecretKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, pattern := range m.patterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

// Len returns the number of registered secrets.
func (m *Masker) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ordered)
}

// Mask replaces every registered secret in s.
func (m *Masker) Mask(s string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, secret := range m.ordered {
		if strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, Replacement)
		}
	}
	return s
}

// MaskMap returns a copy of data with secrets masked in every string,
// descending into nested maps and slices.
func (m *Masker) MaskMap(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = m.maskValue(v)
	}
	return out
}

func (m *Masker) maskValue(v any) any {
	switch val := v.(type) {
	case string:
		return m.Mask(val)
	case map[string]any:
		return m.MaskMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = m.maskValue(item)
		}
		return out
	default:
		return v
	}
}

// Writer returns a writer that masks each write before passing it to w. A
// secret split across two writes is not masked, so callers should write
// whole lines or records.
func (m *Masker) Writer(w io.Writer) io.Writer {
	return &maskingWriter{masker: m, w: w}
}

type maskingWriter struct {
	masker *Masker
	w      io.Writer
}

func (mw *maskingWriter) Write(p []byte) (int, error) {
	if mw.masker.Len() == 0 {
		return mw.w.Write(p)
	}
	if _, err := io.WriteString(mw.w, mw.masker.Mask(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
