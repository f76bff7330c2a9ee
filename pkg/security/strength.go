package security

import (
	"strings"
	"unicode"
)

// MinPasswordLength is the shortest password accepted at signup.
const MinPasswordLength = 8

// MaxPasswordBytes is the bcrypt input limit. Longer passwords cannot be hashed.
const MaxPasswordBytes = 72

// commonPasswords holds passwords seen frequently in healthcare breaches.
// Entries are compared case-insensitively.
var commonPasswords = map[string]struct{}{
	"password":     {},
	"password1":    {},
	"password123":  {},
	"password123!": {},
	"passw0rd":     {},
	"123456":       {},
	"12345678":     {},
	"qwerty123":    {},
	"letmein":      {},
	"welcome1":     {},
	"welcome123":   {},
	"admin123":     {},
	"nhs123":       {},
	"nhs12345":     {},
	"nhspassword":  {},
	"doctor123":    {},
	"dentist":      {},
	"dentist1":     {},
	"dentist123":   {},
	"dental123":    {},
	"patient":      {},
	"patient1":     {},
	"patient123":   {},
	"medical123":   {},
	"hospital1":    {},
	"hospital123":  {},
	"nurse123":     {},
	"health123":    {},
	"surgery1":     {},
	"clinic123":    {},
	"toothache1":   {},
}

// StrengthResult is the outcome of a password strength check.
type StrengthResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidatePasswordStrength checks composition rules and the common password
// denylist. It has no side effects.
func ValidatePasswordStrength(password string) StrengthResult {
	var errs []string

	if len([]rune(password)) < MinPasswordLength {
		errs = append(errs, "password must be at least 8 characters long")
	}
	if len(password) > MaxPasswordBytes {
		errs = append(errs, "password must be at most 72 bytes long")
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			special = true
		}
	}
	if !upper {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if !lower {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if !digit {
		errs = append(errs, "password must contain a digit")
	}
	if !special {
		errs = append(errs, "password must contain a special character")
	}

	if _, common := commonPasswords[strings.ToLower(password)]; common {
		errs = append(errs, "password is too common")
	}

	return StrengthResult{Valid: len(errs) == 0, Errors: errs}
}
