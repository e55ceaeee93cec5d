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

// Package models defines the data structures shared across the letter service.
package models

// LetterType identifies the kind of complaint a letter is drafted for.
type LetterType string

const (
	LetterTypeGym          LetterType = "GYM"
	LetterTypeTelecom      LetterType = "TELECOM"
	LetterTypeSubscription LetterType = "SUBSCRIPTION"
	LetterTypeAirline      LetterType = "AIRLINE"
)

// LetterTypes lists every accepted letter type in display order.
var LetterTypes = []LetterType{
	LetterTypeGym,
	LetterTypeTelecom,
	LetterTypeSubscription,
	LetterTypeAirline,
}

// Valid reports whether t is one of the accepted letter types.
func (t LetterType) Valid() bool {
	for _, lt := range LetterTypes {
		if lt == t {
			return true
		}
	}
	return false
}

// DisplayName returns the human label used in prompts. Unknown types fall
// back to the raw value.
func (t LetterType) DisplayName() string {
	switch t {
	case LetterTypeGym:
		return "Gym Refund"
	case LetterTypeTelecom:
		return "Telecom Overcharge"
	case LetterTypeSubscription:
		return "Subscription Cancel"
	case LetterTypeAirline:
		return "Airline Compensation"
	}
	return string(t)
}

// ComplaintRequest is the inbound complaint submitted by the mobile app.
// It is built once per HTTP request after validation and never mutated.
type ComplaintRequest struct {
	LetterType           LetterType `json:"letterType"`
	CompanyName          string     `json:"companyName"`
	IssueDescription     string     `json:"issueDescription"`
	Amount               string     `json:"amount"`
	TransactionDate      string     `json:"transactionDate"`
	AccountOrOrderNumber string     `json:"accountOrOrderNumber,omitempty"`
}

// Tone is the register a generated letter is written in.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneFirm         Tone = "firm"
)

// GeneratedLetter is a drafted email that has passed schema validation.
//
// This struct's JSON serialisation is the response contract of
// POST /generateLetter and is decoded by the Android client as-is.
type GeneratedLetter struct {
	Subject    string   `json:"subject"`
	EmailBody  string   `json:"emailBody"`
	LegalBasis []string `json:"legalBasis"`
	Tone       Tone     `json:"tone"`
}
