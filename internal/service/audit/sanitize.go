package audit

import (
	"encoding/json"
	"strings"
)

// Redacted replaces the value of every sensitive key.
const Redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{}

func init() {
	for _, k := range []string{
		"password", "passwordHash", "confirmPassword", "currentPassword", "newPassword",
		"token", "accessToken", "refreshToken", "sessionToken", "authorization",
		"secret", "apiKey",
		"cardNumber", "creditCard", "cvv", "cvc",
		// Medical history is encrypted at rest and booking free text is
		// cleared on erasure; the append-only log must hold neither.
		"medicalConditions", "currentMedications", "allergies",
		"specialRequests", "accessibilityNeeds",
	} {
		sensitiveKeys[normalizeKey(k)] = struct{}{}
	}
}

// normalizeKey folds case and drops separators so password_hash,
// Password-Hash and passwordHash all match.
func normalizeKey(k string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '.':
			return -1
		}
		return r
	}, strings.ToLower(k))
}

func IsSensitiveKey(k string) bool {
	_, ok := sensitiveKeys[normalizeKey(k)]
	return ok
}

// Sanitize returns a copy of v with the values of sensitive keys replaced,
// descending into nested objects and arrays. v is not modified.
func Sanitize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = Sanitize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = Sanitize(val)
		}
		return out
	default:
		return v
	}
}

// SanitizeBody parses a JSON request body and returns it sanitized. Bodies
// that are empty or not JSON yield nil so nothing unredacted is stored.
func SanitizeBody(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil
	}
	return Sanitize(v)
}
