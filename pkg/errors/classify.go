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

package errors

import "errors"

// ErrorClassifier is implemented by errors that know their category and
// whether a retry could help.
type ErrorClassifier interface {
	error
	ErrorType() string
	IsRetryable() bool
}

// Classify finds the first ErrorClassifier in err's chain. ok is false when
// there is none.
func Classify(err error) (errType string, retryable bool, ok bool) {
	var c ErrorClassifier
	if !errors.As(err, &c) {
		return "", false, false
	}
	return c.ErrorType(), c.IsRetryable(), true
}
