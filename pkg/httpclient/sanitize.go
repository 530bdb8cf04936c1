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
	"net/url"
	"regexp"
)

// sensitiveParam matches query parameter names whose values never reach the
// logs. The Gemini API takes its key as ?key=.
var sensitiveParam = regexp.MustCompile(`(?i)key|token|secret|password|auth|credential|signature`)

const redacted = "[REDACTED]"

// sanitizeURL returns u with userinfo and sensitive query values redacted.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	safe := *u
	if safe.User != nil {
		safe.User = url.User("redacted")
	}
	if safe.RawQuery != "" {
		q := safe.Query()
		for name := range q {
			if sensitiveParam.MatchString(name) {
				q.Set(name, redacted)
			}
		}
		safe.RawQuery = q.Encode()
	}
	return safe.String()
}

// SanitizeURL is sanitizeURL for a raw URL.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[INVALID URL]"
	}
	return sanitizeURL(u)
}
