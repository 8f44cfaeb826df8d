package services

import (
	"math"
	"strconv"
	"strings"
)

// NormalizeAccountID returns the canonical form of an external account
// id. Purely numeric values, including float-encoded integers such as
// "123.0", become base-10 integers; anything else is trimmed.
func NormalizeAccountID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", invalid("account id", "must not be empty")
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return strconv.FormatUint(n, 10), nil
	}
	if isNumeric(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f == math.Trunc(f) && f < 1<<53 {
			return strconv.FormatInt(int64(f), 10), nil
		}
	}
	return s, nil
}

// isNumeric accepts decimal and exponent notation only, so values such
// as "Inf" or "0x10" stay strings.
func isNumeric(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == 'e' || r == 'E':
		case (r == '+' || r == '-') && i > 0 && (s[i-1] == 'e' || s[i-1] == 'E'):
		default:
			return false
		}
	}
	return digits > 0
}

func requireID(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", invalid(field, "must not be empty")
	}
	if len(v) > 255 {
		return "", invalid(field, "too long")
	}
	return v, nil
}
