package screening

import (
	"crypto/subtle"
	"strings"
	"unicode"
)

// PINLength is the number of DTMF digits a PIN must have.
const PINLength = 4

// NormalizeDigits strips every non-digit from a phone number or DTMF string.
func NormalizeDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeSpeech lowercases s, drops punctuation and collapses whitespace,
// so "Open, Sesame!" and "open sesame" compare equal.
func NormalizeSpeech(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// FormatE164 renders canonical digits for dialing. Ten-digit numbers are
// treated as North American.
func FormatE164(digits string) string {
	switch len(digits) {
	case 0:
		return ""
	case 10:
		return "+1" + digits
	default:
		return "+" + digits
	}
}

// ValidPIN reports whether pin is exactly four digits.
func ValidPIN(pin string) bool {
	if len(pin) != PINLength {
		return false
	}
	return NormalizeDigits(pin) == pin
}

// matchPIN compares submitted DTMF digits against the expected PIN.
func matchPIN(submitted, expected string) bool {
	if len(submitted) != PINLength || len(expected) != PINLength {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(expected)) == 1
}

// matchPassphrase compares recognised speech against the tenant passphrase
// after normalising both. An empty passphrase never matches.
func matchPassphrase(spoken, passphrase string) bool {
	want := NormalizeSpeech(passphrase)
	if want == "" {
		return false
	}
	return NormalizeSpeech(spoken) == want
}
