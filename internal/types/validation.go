package types

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Validation constraint constants.
const (
	MaxTitleLength     = 100
	MaxMessageLength   = 1000
	MaxAnswerLength    = 1000
	MaxJobFieldLength  = 100
	MinLat             = -90.0
	MaxLat             = 90.0
	MinLon             = -180.0
	MaxLon             = 180.0
	minIntlPhoneDigits = 7
	maxIntlPhoneDigits = 15
)

var (
	stripPolicy = bluemonday.StrictPolicy()
	usPhoneRe   = regexp.MustCompile(`^[2-9]\d{2}[2-9]\d{2}\d{4}$`)
	nonDigitRe  = regexp.MustCompile(`\D`)
)

// SanitizeText removes all markup from s and trims surrounding whitespace.
// Entities are decoded so plain-text channels (SMS) receive readable text;
// a second pass strips markup that was hidden behind entity encoding.
func SanitizeText(s string) string {
	out := s
	for i := 0; i < 2; i++ {
		out = html.UnescapeString(stripPolicy.Sanitize(out))
	}
	return strings.TrimSpace(out)
}

// ValidateTitle trims, bounds and sanitizes an alert title.
func ValidateTitle(title string) (string, error) {
	return validateText(title, MaxTitleLength, ErrCodeValidationTitle, "Title")
}

// ValidateMessage trims, bounds and sanitizes an alert message body.
func ValidateMessage(message string) (string, error) {
	return validateText(message, MaxMessageLength, ErrCodeValidationMessage, "Message")
}

func validateText(raw string, max int, code ErrorCode, field string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", NewAppError(code, field+" cannot be empty", nil)
	}
	if utf8.RuneCountInString(trimmed) > max {
		return "", NewAppErrorWithDetails(code, field+" exceeds maximum length", nil,
			map[string]any{"max_length": max})
	}
	clean := SanitizeText(trimmed)
	if clean == "" {
		return "", NewAppError(code, field+" cannot be empty", nil)
	}
	return clean, nil
}

// NormalizePhoneNumber validates a phone number and returns its digits in
// E.164-like form ("+" followed by digits). Ten-digit numbers are treated as
// US numbers and must satisfy NANP area/exchange rules.
func NormalizePhoneNumber(phone string) (string, error) {
	digits := nonDigitRe.ReplaceAllString(phone, "")
	switch {
	case len(digits) == 10:
		if !usPhoneRe.MatchString(digits) {
			return "", NewAppError(ErrCodeValidationPhone, "Invalid US phone number format", nil)
		}
		return "+1" + digits, nil
	case len(digits) >= minIntlPhoneDigits && len(digits) <= maxIntlPhoneDigits:
		return "+" + digits, nil
	default:
		return "", NewAppError(ErrCodeValidationPhone,
			"Phone number must be 10 digits (US) or 7-15 digits (international)", nil)
	}
}

// ValidateCoordinates checks latitude and longitude bounds.
func ValidateCoordinates(lat, lon float64) error {
	if lat < MinLat || lat > MaxLat {
		return NewAppError(ErrCodeValidationInvalidLat, "Latitude must be between -90 and 90", nil)
	}
	if lon < MinLon || lon > MaxLon {
		return NewAppError(ErrCodeValidationInvalidLon, "Longitude must be between -180 and 180", nil)
	}
	return nil
}

// OptionalText sanitizes an optional free-text field, returning nil when the
// result is empty. Input longer than max is truncated.
func OptionalText(s *string, max int) *string {
	if s == nil {
		return nil
	}
	clean := SanitizeText(*s)
	if clean == "" {
		return nil
	}
	if utf8.RuneCountInString(clean) > max {
		clean = string([]rune(clean)[:max])
	}
	return &clean
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
