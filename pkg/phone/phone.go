// Package phone canonicalizes and matches Moroccan phone numbers across the
// formats they arrive in: local ("0612345678"), bare mobile ("612345678"),
// and full international ("212612345678"). The WhatsApp gateway reports
// numbers with inconsistent prefixes, so cross-format matching is done on a
// 9-digit suffix rather than on the full number.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// CountryCode is the Moroccan dialing code used for the canonical form.
const CountryCode = "212"

// SuffixLen is the number of trailing digits used for fuzzy matching.
const SuffixLen = 9

// Digits strips everything but ASCII digits from raw.
func Digits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Clean returns the canonical 12-digit "212…" form of a Moroccan phone
// number, or "" when the input does not match any supported shape.
// Supported shapes: 9 digits starting with 6 or 7, 10 digits starting with
// 06 or 07, or 12 digits already starting with 212.
func Clean(raw string) string {
	d := Digits(raw)
	switch {
	case len(d) == 9 && (d[0] == '6' || d[0] == '7'):
		return CountryCode + d
	case len(d) == 10 && d[0] == '0' && (d[1] == '6' || d[1] == '7'):
		return CountryCode + d[1:]
	case len(d) == 12 && strings.HasPrefix(d, CountryCode):
		return d
	}
	return ""
}

// CleanInternational is the enqueue-time fallback for recipients outside
// Morocco. It accepts E.164 input ("+<cc><number>") and returns the digits
// without the plus, or "" when the number does not validate.
func CleanInternational(raw string) string {
	if c := Clean(raw); c != "" {
		return c
	}
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "+") {
		return ""
	}
	parsed, err := phonenumbers.Parse(trimmed, "")
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return ""
	}
	return strings.TrimPrefix(phonenumbers.Format(parsed, phonenumbers.E164), "+")
}

// Suffix returns the last 9 digits of raw, or "" when fewer than 9 digits
// are present.
func Suffix(raw string) string {
	d := Digits(raw)
	if len(d) < SuffixLen {
		return ""
	}
	return d[len(d)-SuffixLen:]
}

// BuildSuffixIndex maps the 9-digit suffix of each phone to its original
// form. Unparseable entries are skipped.
func BuildSuffixIndex(phones []string) map[string]string {
	index := make(map[string]string, len(phones))
	for _, p := range phones {
		if s := Suffix(p); s != "" {
			index[s] = p
		}
	}
	return index
}

// MatchesAny reports whether p matches any entry of a suffix index built
// with BuildSuffixIndex.
func MatchesAny(p string, index map[string]string) bool {
	s := Suffix(p)
	if s == "" {
		return false
	}
	_, ok := index[s]
	return ok
}

// FormatForWhatsApp returns the "+212…" form expected by the gateway, or
// "" when the input is not a valid Moroccan number.
func FormatForWhatsApp(raw string) string {
	c := Clean(raw)
	if c == "" {
		return ""
	}
	return "+" + c
}

// FormatForDisplay returns "+212 6XX XXX XXX" for UI surfaces, or "" when
// the input is not a valid Moroccan number.
func FormatForDisplay(raw string) string {
	c := Clean(raw)
	if c == "" {
		return ""
	}
	local := c[len(CountryCode):]
	return "+" + CountryCode + " " + local[:3] + " " + local[3:6] + " " + local[6:]
}
