package crypto

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinPasswordLen is the minimum accepted master password length.
const MinPasswordLen = 8

// ValidatePasswordStrength checks the password against the length and
// character-class policy. The message is suitable for showing to the user.
func ValidatePasswordStrength(password string) (bool, string) {
	if utf8.RuneCountInString(password) < MinPasswordLen {
		return false, "Password must be at least 8 characters long"
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsSpace(r):
		case unicode.IsLetter(r):
			// letters without case (e.g. CJK) count toward neither class
		default:
			symbol = true
		}
	}

	var missing []string
	if !upper {
		missing = append(missing, "one uppercase letter")
	}
	if !lower {
		missing = append(missing, "one lowercase letter")
	}
	if !digit {
		missing = append(missing, "one digit")
	}
	if !symbol {
		missing = append(missing, "one special character")
	}
	if len(missing) > 0 {
		return false, "Password must contain at least " + strings.Join(missing, ", ")
	}
	return true, "Password is strong"
}

// SanitizeInput strips NUL bytes and surrounding whitespace. Inner whitespace
// and case are preserved.
func SanitizeInput(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}
