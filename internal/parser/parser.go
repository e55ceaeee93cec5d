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

// Package parser extracts the JSON object from raw model text. It only
// strips surrounding whitespace and a single markdown code fence; any other
// malformation is left to the repair round-trip.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseError reports model text that is not well-formed JSON after cleaning.
type ParseError struct {
	// Length of the raw text, for diagnostics. The text itself is not kept.
	Length int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model response (%d bytes): %v", e.Length, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errEmpty = errors.New("empty response")

// Clean trims whitespace and removes one layer of ```json or ``` fencing.
func Clean(text string) string {
	cleaned := strings.TrimSpace(text)

	if strings.HasPrefix(cleaned, "```json") {
		cleaned = cleaned[len("```json"):]
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = cleaned[len("```"):]
	}
	cleaned = strings.TrimSuffix(cleaned, "```")

	return strings.TrimSpace(cleaned)
}

// Extract decodes the cleaned text into a generic JSON value. The value is
// not checked for shape here; see package schema.
func Extract(text string) (any, error) {
	cleaned := Clean(text)
	if cleaned == "" {
		return nil, &ParseError{Length: len(text), Err: errEmpty}
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ParseError{Length: len(text), Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Length: len(text), Err: errors.New("trailing data after JSON value")}
	}

	return v, nil
}
