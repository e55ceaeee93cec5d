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

package models

// Legal bases a letter may cite. Membership in this list is the only
// validity test for GeneratedLetter.LegalBasis entries.
const (
	ConsumerProtectionAct  = "Consumer Protection Act, 2002 (Ontario)"
	SaleOfGoodsAct         = "Sale of Goods Act (Ontario)"
	AirPassengerProtection = "Air Passenger Protection Regulations (Canada)"
	WirelessCode           = "Wireless Code (CRTC)"
	InternetCode           = "Internet Code (CRTC)"
	CompetitionAct         = "Competition Act (Canada)"
	ElectronicCommerceAct  = "Electronic Commerce Act, 2000 (Ontario)"
)

// AllowedLegalBasis is the fixed allow-list, in the order the prompt lists it.
var AllowedLegalBasis = []string{
	ConsumerProtectionAct,
	SaleOfGoodsAct,
	AirPassengerProtection,
	WirelessCode,
	InternetCode,
	CompetitionAct,
	ElectronicCommerceAct,
}

// IsAllowedLegalBasis reports whether s is an exact member of the allow-list.
func IsAllowedLegalBasis(s string) bool {
	for _, b := range AllowedLegalBasis {
		if b == s {
			return true
		}
	}
	return false
}

// ApplicableLegalBasis returns the subset of the allow-list that usually
// applies to a letter type. Unknown types get nil.
func ApplicableLegalBasis(t LetterType) []string {
	switch t {
	case LetterTypeGym:
		return []string{ConsumerProtectionAct}
	case LetterTypeTelecom:
		return []string{ConsumerProtectionAct, WirelessCode, InternetCode}
	case LetterTypeSubscription:
		return []string{ConsumerProtectionAct, ElectronicCommerceAct}
	case LetterTypeAirline:
		return []string{AirPassengerProtection, ConsumerProtectionAct}
	}
	return nil
}
