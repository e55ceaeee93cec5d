// Copyright (c) 2026 John Earle
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

package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is any failure to get a response from the model provider:
// connectivity, timeouts, non-200 statuses and undecodable envelopes.
// Authentication failures (401/403) are not distinguished from other
// provider errors.
type TransportError struct {
	// StatusCode is the provider HTTP status, 0 when no response arrived.
	StatusCode int
	// Type is the provider error type, e.g. "rate_limit_error", if known.
	Type string
	Err  error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("model transport error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimited reports whether the provider asked the caller to back off.
func (e *TransportError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Type == "rate_limit_error"
}

// IsRateLimited reports whether err is, or wraps, a rate-limit TransportError.
func IsRateLimited(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.RateLimited()
}
