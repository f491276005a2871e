package pii

import (
	"regexp"
	"strings"
)

// Sentinel tokens for categories masked by full replacement.
const (
	passportSentinel  = "[REDACTED_PASSPORT]"
	addressSentinel   = "[REDACTED_ADDRESS]"
	deviceIDSentinel  = "[REDACTED_DEVICE_ID]"
	ipAddressSentinel = "[REDACTED_IP_ADDRESS]"

	// namePlaceholder is emitted when a field was structurally forced
	// into the name bucket but carries no name-shaped text.
	namePlaceholder = "XXXX"
)

// Mask returns a redacted copy of value for the given category. It is a
// total function: it never fails and never returns an empty string for a
// non-empty input. Input that does not fit the category's pattern (for
// example a key-triggered field with free-form text) gets best-effort
// partial masking instead.
func Mask(value string, category Category) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return value
	}

	switch category {
	case CategoryPhone:
		return maskPhone(v)
	case CategoryNationalID:
		return maskNationalID(v)
	case CategoryPassport:
		if passportPattern.MatchString(v) {
			return passportPattern.ReplaceAllString(v, passportSentinel)
		}
		return passportSentinel
	case CategoryPaymentHandle:
		return maskPaymentHandle(v)
	case CategoryEmail:
		return maskEmail(v)
	case CategoryName:
		return maskName(v)
	case CategoryAddress:
		return addressSentinel
	case CategoryDeviceID:
		return deviceIDSentinel
	case CategoryIPAddress:
		return ipAddressSentinel
	default:
		return v
	}
}

// maskPhone keeps the first two and last two characters of each matched
// span and fills the interior with X, preserving total length. A value
// that only matched after separator stripping has no span in the raw
// text, so the whole value is interior-masked instead.
func maskPhone(v string) string {
	masked := v
	replaced := false
	patterns := []*regexp.Regexp{phonePlus91Pattern, phone91Pattern, phoneBarePattern, phoneDigitsPattern}
	for _, re := range patterns {
		next := re.ReplaceAllStringFunc(masked, maskInterior)
		if next != masked {
			replaced = true
			masked = next
		}
	}
	if replaced {
		return masked
	}
	return maskInterior(v)
}

// maskInterior replaces everything but the first and last two characters
// with X. Short inputs are fully masked.
func maskInterior(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("X", len(s))
	}
	return s[:2] + strings.Repeat("X", len(s)-4) + s[len(s)-2:]
}

// maskNationalID keeps the final four digits and preserves the original
// grouping: spaced input stays spaced, contiguous input stays contiguous.
func maskNationalID(v string) string {
	if nationalIDPattern.MatchString(v) {
		return nationalIDPattern.ReplaceAllStringFunc(v, func(m string) string {
			if whitespacePattern.MatchString(m) {
				return "XXXX XXXX " + m[len(m)-4:]
			}
			return "XXXXXXXX" + m[len(m)-4:]
		})
	}

	cleaned := whitespacePattern.ReplaceAllString(v, "")
	if nationalIDCompact.MatchString(cleaned) {
		return "XXXXXXXX" + cleaned[len(cleaned)-4:]
	}
	if len(cleaned) > 4 {
		return strings.Repeat("X", len(cleaned)-4) + cleaned[len(cleaned)-4:]
	}
	return strings.Repeat("X", len(v))
}

// maskPaymentHandle keeps up to three characters of the local part and
// the whole domain.
func maskPaymentHandle(v string) string {
	if paymentHandlePattern.MatchString(v) {
		return paymentHandlePattern.ReplaceAllStringFunc(v, func(m string) string {
			local, domain, _ := strings.Cut(m, "@")
			if len(local) > 3 {
				local = local[:3]
			}
			return local + "XXX@" + domain
		})
	}
	if local, domain, ok := strings.Cut(v, "@"); ok {
		if len(local) > 3 {
			local = local[:3]
		}
		return local + "XXX@" + domain
	}
	return maskInterior(v)
}

// maskEmail keeps the first three characters of the local part when it is
// longer than three, and the whole domain.
func maskEmail(v string) string {
	mask := func(local, domain string) string {
		if len(local) > 3 {
			return local[:3] + "XXX@" + domain
		}
		return "XXX@" + domain
	}
	if emailPattern.MatchString(v) {
		return emailPattern.ReplaceAllStringFunc(v, func(m string) string {
			local, domain, _ := strings.Cut(m, "@")
			return mask(local, domain)
		})
	}
	if local, domain, ok := strings.Cut(v, "@"); ok {
		return mask(local, domain)
	}
	return maskInterior(v)
}

// maskName replaces each detected two-word name span with initials
// (`RXXX SXXX` for "Rahul Sharma"). A key-only trigger with no
// name-shaped text yields the fixed placeholder.
func maskName(v string) string {
	spans := extractNames(v)
	if len(spans) == 0 {
		return namePlaceholder
	}

	masked := v
	for _, span := range spans {
		parts := strings.Fields(span)
		first, last := parts[0], parts[len(parts)-1]
		repl := first[:1] + "XXX " + last[:1] + "XXX"
		masked = strings.ReplaceAll(masked, span, repl)
	}
	return masked
}
