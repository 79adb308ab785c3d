package api

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/callbunker/callbunker/internal/database/models"
	"github.com/callbunker/callbunker/internal/screening"
)

// maxLabelLen is the maximum length for display labels.
const maxLabelLen = 200

// maxEmailLen is the maximum length for email addresses (RFC 5321).
const maxEmailLen = 254

// maxPassphraseLen bounds the spoken passphrase.
const maxPassphraseLen = 200

// maxPasswordLen is the maximum length for passwords.
const maxPasswordLen = 256

// maxTokenLen bounds FCM registration tokens.
const maxTokenLen = 4096

// Phone numbers are stored as 7 to 15 digits (E.164 without the plus).
const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// emailRe is a basic email format regex. Not exhaustive; validates structure only.
var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// phoneCharsRe allows the punctuation people paste with phone numbers.
var phoneCharsRe = regexp.MustCompile(`^\+?[0-9 ().\-]+$`)

// validateStringLen checks that a string does not exceed maxLen characters.
// Returns an error message if invalid, empty string if OK.
func validateStringLen(field, value string, maxLen int) string {
	if utf8.RuneCountInString(value) > maxLen {
		return field + " exceeds maximum length"
	}
	return ""
}

// validateRequiredStringLen checks that a non-empty string does not exceed maxLen.
func validateRequiredStringLen(field, value string, maxLen int) string {
	if value == "" {
		return field + " is required"
	}
	return validateStringLen(field, value, maxLen)
}

// validateEmail checks that a string is a valid-looking email address.
func validateEmail(field, value string) string {
	if value == "" {
		return ""
	}
	if len(value) > maxEmailLen {
		return field + " exceeds maximum length"
	}
	if !emailRe.MatchString(value) {
		return field + " is not a valid email address"
	}
	return ""
}

// validatePhone checks a required phone number and returns its canonical
// digits.
func validatePhone(field, value string) (string, string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", field + " is required"
	}
	if !phoneCharsRe.MatchString(value) {
		return "", field + " is not a valid phone number"
	}
	digits := screening.NormalizeDigits(value)
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", field + " must have between " + strconv.Itoa(minPhoneDigits) + " and " + strconv.Itoa(maxPhoneDigits) + " digits"
	}
	return digits, ""
}

// validatePIN checks that a PIN is exactly four digits.
func validatePIN(field, value string) string {
	if !screening.ValidPIN(value) {
		return field + " must be exactly " + strconv.Itoa(screening.PINLength) + " digits"
	}
	return ""
}

// validatePassphrase requires something left after speech normalization.
func validatePassphrase(field, value string) string {
	if msg := validateStringLen(field, value, maxPassphraseLen); msg != "" {
		return msg
	}
	if screening.NormalizeSpeech(value) == "" {
		return field + " is required"
	}
	return validateNoControlChars(field, value)
}

func validateForwardMode(field, value string) string {
	switch value {
	case models.ForwardModeBridge, models.ForwardModeVoicemail:
		return ""
	}
	return field + " must be one of " + models.ForwardModeBridge + ", " + models.ForwardModeVoicemail
}

// validateIntRange checks that an optional int pointer is within [min, max].
func validateIntRange(field string, value *int, min, max int) string {
	if value == nil {
		return ""
	}
	if *value < min || *value > max {
		return field + " must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max)
	}
	return ""
}

// containsControlChars checks whether a string has control characters
// (except common whitespace like \n, \r, \t).
func containsControlChars(s string) bool {
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return true
		}
	}
	return false
}

// validateNoControlChars rejects strings with control characters.
func validateNoControlChars(field, value string) string {
	if containsControlChars(value) {
		return field + " contains invalid characters"
	}
	return ""
}

// firstError returns the first non-empty message.
func firstError(msgs ...string) string {
	for _, m := range msgs {
		if m != "" {
			return m
		}
	}
	return ""
}
