package user

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/apperr"
)

// MinPasswordLength applies to signup, password change and reset.
const MinPasswordLength = 6

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail checks the local@domain.tld shape of a normalized address.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func trim(s string) string { return strings.TrimSpace(s) }

// checkNewPassword applies the length rules to a password that is about to be hashed.
func checkNewPassword(field, pw string) error {
	if len(pw) < MinPasswordLength {
		return apperr.Validation(fmt.Sprintf("%s must be at least %d characters", field, MinPasswordLength))
	}
	if len(pw) > MaxPasswordBytes {
		return apperr.Validation(fmt.Sprintf("%s must be at most %d bytes", field, MaxPasswordBytes))
	}
	return nil
}
