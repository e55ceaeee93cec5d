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

// Package intake validates inbound complaint payloads before any model call
// is made. Every violated constraint is reported so the client can correct
// all fields in one round-trip.
package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/powerletter/backend/internal/models"
)

// Field limits, counted in Unicode code points.
const (
	MaxCompanyName      = 200
	MaxIssueDescription = 1000
	MaxTransactionDate  = 100
	MaxAccountNumber    = 100
)

var amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// ValidationError lists every field constraint a request violates.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid complaint request: %s", strings.Join(e.Details, "; "))
}

// Decode parses a JSON body and validates it as a ComplaintRequest.
// An empty body is treated as an empty object. Any other body that is not
// a JSON object is reported as a single violation.
func Decode(body []byte) (models.ComplaintRequest, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Validate(map[string]any{})
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return models.ComplaintRequest{}, &ValidationError{
			Details: []string{"request body must be a JSON object"},
		}
	}
	return Validate(fields)
}

// Validate checks decoded request fields against the complaint constraints
// and builds the request when all of them hold.
func Validate(fields map[string]any) (models.ComplaintRequest, error) {
	var details []string

	letterType, _ := fields["letterType"].(string)
	if !models.LetterType(letterType).Valid() {
		names := make([]string, 0, len(models.LetterTypes))
		for _, lt := range models.LetterTypes {
			names = append(names, string(lt))
		}
		details = append(details, "letterType must be one of: "+strings.Join(names, ", "))
	}

	company, msg := requiredString(fields, "companyName", MaxCompanyName)
	details = appendIf(details, msg)

	issue, msg := requiredString(fields, "issueDescription", MaxIssueDescription)
	details = appendIf(details, msg)

	amount, ok := fields["amount"].(string)
	switch {
	case !ok || amount == "":
		details = append(details, "amount is required")
	case !amountPattern.MatchString(amount):
		details = append(details, "amount must be a valid number (e.g., 150.00)")
	}

	date, msg := requiredString(fields, "transactionDate", MaxTransactionDate)
	details = appendIf(details, msg)

	var account string
	switch v := fields["accountOrOrderNumber"].(type) {
	case nil:
	case string:
		account = v
		if utf8.RuneCountInString(v) > MaxAccountNumber {
			details = append(details, fmt.Sprintf("accountOrOrderNumber must be %d characters or less", MaxAccountNumber))
		}
	default:
		details = append(details, "accountOrOrderNumber must be a string")
	}

	if len(details) > 0 {
		return models.ComplaintRequest{}, &ValidationError{Details: details}
	}

	return models.ComplaintRequest{
		LetterType:           models.LetterType(letterType),
		CompanyName:          company,
		IssueDescription:     issue,
		Amount:               amount,
		TransactionDate:      date,
		AccountOrOrderNumber: account,
	}, nil
}

// requiredString returns the field value, or a violation message when the
// field is missing, not a string, empty or longer than limit.
func requiredString(fields map[string]any, name string, limit int) (string, string) {
	v, ok := fields[name].(string)
	if !ok || v == "" {
		return "", name + " is required"
	}
	if utf8.RuneCountInString(v) > limit {
		return "", fmt.Sprintf("%s must be %d characters or less", name, limit)
	}
	return v, ""
}

func appendIf(details []string, msg string) []string {
	if msg == "" {
		return details
	}
	return append(details, msg)
}
