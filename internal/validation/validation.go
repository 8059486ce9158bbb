// Package validation holds the identifier and identity checks shared by the
// attendance engine and the HTTP handlers.
package validation

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/eventroster/backend/internal/apperror"
)

// IdentifierLength is the length of identifiers issued by storage.GenerateID.
const IdentifierLength = 32

// IsIdentifier reports whether s is a well-formed store identifier:
// IdentifierLength lowercase hex characters.
func IsIdentifier(s string) bool {
	if len(s) != IdentifierLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ValidateIdentifier fails with InvalidIdentifier unless s is a well-formed
// store identifier. The returned error carries the event wording; use
// ValidateMemberID for person identifiers.
func ValidateIdentifier(s string) error {
	if !IsIdentifier(s) {
		return apperror.ErrInvalidEventID
	}
	return nil
}

// ValidateEventID is ValidateIdentifier for event identifiers.
func ValidateEventID(s string) error {
	return ValidateIdentifier(s)
}

// ValidateMemberID is ValidateIdentifier for person identifiers.
func ValidateMemberID(s string) error {
	if !IsIdentifier(s) {
		return apperror.ErrInvalidMemberID
	}
	return nil
}

// ValidateEmail fails with InvalidEmail unless s holds exactly one '@' with
// non-empty local and domain parts and no whitespace.
func ValidateEmail(s string) error {
	s = strings.TrimSpace(s)
	if strings.Count(s, "@") != 1 || strings.ContainsAny(s, " \t\r\n") {
		return apperror.ErrInvalidEmail
	}
	local, domain, _ := strings.Cut(s, "@")
	if local == "" || domain == "" {
		return apperror.ErrInvalidEmail
	}
	return nil
}

// ValidateName fails with InvalidName unless s is non-empty after trimming.
func ValidateName(s string) error {
	if strings.TrimSpace(s) == "" {
		return apperror.ErrInvalidName
	}
	return nil
}

// NormalizeName trims s and converts it to Unicode NFC so that visually equal
// names compare equal.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NormalizeEmail trims and lower-cases s. Emails are stored and looked up in
// this form.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
