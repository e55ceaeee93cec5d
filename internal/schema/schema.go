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

// Package schema checks model output against the GeneratedLetter contract.
// Checks run in a fixed order and stop at the first failure; the returned
// Violation names the field and the reason for diagnostics only.
package schema

import (
	"fmt"
	"unicode/utf8"

	"github.com/powerletter/backend/internal/models"
)

// Bounds on generated letters, counted in Unicode code points.
const (
	MinSubject    = 10
	MaxSubject    = 100
	MinEmailBody  = 200
	MaxEmailBody  = 3000
	MaxLegalBasis = 5
)

// Violation describes the first constraint a candidate letter failed.
type Violation struct {
	Field  string
	Reason string
}

func (v *Violation) Error() string {
	if v.Field == "" {
		return "invalid letter: " + v.Reason
	}
	return fmt.Sprintf("invalid letter %s: %s", v.Field, v.Reason)
}

// Validate checks a decoded candidate (as produced by encoding/json into
// an any) and returns the typed letter when every check passes.
func Validate(candidate any) (models.GeneratedLetter, error) {
	obj, ok := candidate.(map[string]any)
	if !ok || obj == nil {
		return models.GeneratedLetter{}, &Violation{Reason: "response is not an object"}
	}

	subject, ok := obj["subject"].(string)
	if !ok || !within(subject, MinSubject, MaxSubject) {
		return models.GeneratedLetter{}, &Violation{
			Field:  "subject",
			Reason: fmt.Sprintf("must be a string of %d-%d characters", MinSubject, MaxSubject),
		}
	}

	body, ok := obj["emailBody"].(string)
	if !ok || !within(body, MinEmailBody, MaxEmailBody) {
		return models.GeneratedLetter{}, &Violation{
			Field:  "emailBody",
			Reason: fmt.Sprintf("must be a string of %d-%d characters", MinEmailBody, MaxEmailBody),
		}
	}

	rawBasis, ok := obj["legalBasis"].([]any)
	if !ok {
		return models.GeneratedLetter{}, &Violation{Field: "legalBasis", Reason: "must be an array"}
	}
	if len(rawBasis) > MaxLegalBasis {
		return models.GeneratedLetter{}, &Violation{
			Field:  "legalBasis",
			Reason: fmt.Sprintf("must have %d or fewer items", MaxLegalBasis),
		}
	}
	basis := make([]string, 0, len(rawBasis))
	for _, item := range rawBasis {
		s, ok := item.(string)
		if !ok || !models.IsAllowedLegalBasis(s) {
			return models.GeneratedLetter{}, &Violation{
				Field:  "legalBasis",
				Reason: fmt.Sprintf("unknown entry %v", item),
			}
		}
		basis = append(basis, s)
	}

	tone, _ := obj["tone"].(string)
	if tone != string(models.ToneProfessional) && tone != string(models.ToneFirm) {
		return models.GeneratedLetter{}, &Violation{Field: "tone", Reason: "must be professional or firm"}
	}

	return models.GeneratedLetter{
		Subject:    subject,
		EmailBody:  body,
		LegalBasis: basis,
		Tone:       models.Tone(tone),
	}, nil
}

func within(s string, lo, hi int) bool {
	n := utf8.RuneCountInString(s)
	return n >= lo && n <= hi
}
