package pii

import (
	"regexp"
	"strings"
)

// All patterns are compiled once at package init and shared read-only
// across concurrent analyzers.
var (
	// Phone: international +91 form, bare 91 prefix, direct 10-digit run
	// starting 7/8/9, and a generic 10-digit run once separators are
	// stripped. The +91 form carries no leading \b because '+' is not a
	// word character.
	phonePlus91Pattern = regexp.MustCompile(`\+91[-\s]?[789]\d{9}\b`)
	phone91Pattern     = regexp.MustCompile(`\b91[789]\d{9}\b`)
	phoneBarePattern   = regexp.MustCompile(`\b[789]\d{9}\b`)
	phoneDigitsPattern = regexp.MustCompile(`\b\d{10}\b`)
	phoneSeparators    = regexp.MustCompile(`[-\s()]`)

	// NationalID: 12 digits, first in 2-9, optionally grouped 4-4-4.
	nationalIDPattern = regexp.MustCompile(`\b[2-9]\d{3}\s?\d{4}\s?\d{4}\b`)
	nationalIDCompact = regexp.MustCompile(`^[2-9]\d{11}$`)
	whitespacePattern = regexp.MustCompile(`\s`)

	// Passport: one letter followed by exactly seven digits.
	passportPattern = regexp.MustCompile(`\b[A-Za-z]\d{7}\b`)

	// PaymentHandle: localpart@domain with an alphabetic-only domain
	// label, which is what separates a UPI handle from a full email.
	paymentHandlePattern = regexp.MustCompile(`\b[a-zA-Z0-9.-]{2,256}@[a-zA-Z]{2,64}\b`)

	// Email: local@domain.tld with a dotted domain.
	emailPattern = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)

	// Name: two capitalized Latin words in a row.
	namePattern = regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`)
)

// nameStoplist holds geographic tokens; a capitalized-word run composed
// entirely of these is not treated as a person name.
var nameStoplist = map[string]struct{}{
	"new": {}, "york": {}, "san": {}, "los": {}, "las": {},
	"north": {}, "south": {}, "east": {}, "west": {},
}

// DetectionRule couples a category with its key-name triggers and its
// value predicate. Find returns the matched span, or "" when the value
// does not match; a nil Find means the rule is key-triggered only. Key
// and value predicates are independent and their results are unioned.
type DetectionRule struct {
	Category Category
	Keys     []string
	Find     func(value string) string
}

// DefaultRules returns the built-in detection rules in precedence order.
func DefaultRules() []DetectionRule {
	return []DetectionRule{
		{
			Category: CategoryPhone,
			Keys:     []string{"phone", "contact"},
			Find:     findPhone,
		},
		{
			Category: CategoryNationalID,
			Keys:     []string{"aadhar"},
			Find:     findNationalID,
		},
		{
			Category: CategoryPassport,
			Keys:     []string{"passport"},
			Find:     func(v string) string { return passportPattern.FindString(v) },
		},
		{
			Category: CategoryPaymentHandle,
			Keys:     []string{"upi_id"},
			Find:     func(v string) string { return paymentHandlePattern.FindString(v) },
		},
		{
			Category: CategoryEmail,
			Keys:     []string{"email"},
			Find:     func(v string) string { return emailPattern.FindString(v) },
		},
		{
			Category: CategoryName,
			// first_name/last_name triggering is conditional on the record
			// having no sibling "name" key; the classifier handles it.
			Keys: nil,
			Find: findName,
		},
		{
			Category: CategoryAddress,
			Keys:     []string{"address", "city", "pin_code", "state"},
		},
		{
			Category: CategoryDeviceID,
			Keys:     []string{"device_id"},
		},
		{
			Category: CategoryIPAddress,
			Keys:     []string{"ip_address"},
		},
	}
}

// findPhone checks the three explicit phone shapes on the raw value,
// then retries the generic 10-digit run with separators stripped.
func findPhone(value string) string {
	for _, re := range []*regexp.Regexp{phonePlus91Pattern, phone91Pattern, phoneBarePattern} {
		if m := re.FindString(value); m != "" {
			return m
		}
	}
	cleaned := phoneSeparators.ReplaceAllString(value, "")
	return phoneDigitsPattern.FindString(cleaned)
}

// findNationalID checks the grouped 4-4-4 shape, then the contiguous
// 12-digit form with all whitespace removed.
func findNationalID(value string) string {
	if m := nationalIDPattern.FindString(value); m != "" {
		return m
	}
	cleaned := whitespacePattern.ReplaceAllString(value, "")
	if nationalIDCompact.MatchString(cleaned) {
		return cleaned
	}
	return ""
}

// findName returns the first capitalized two-word run that is not made
// up entirely of stoplisted geographic tokens.
func findName(value string) string {
	for _, span := range extractNames(value) {
		return span
	}
	return ""
}

// extractNames returns every name-shaped span in value, stoplist applied.
func extractNames(value string) []string {
	var names []string
	for _, span := range namePattern.FindAllString(value, -1) {
		if allStoplisted(span) {
			continue
		}
		names = append(names, span)
	}
	return names
}

// allStoplisted reports whether every word of the span is a stoplist token.
func allStoplisted(span string) bool {
	for _, word := range strings.Fields(span) {
		if _, ok := nameStoplist[strings.ToLower(word)]; !ok {
			return false
		}
	}
	return true
}
