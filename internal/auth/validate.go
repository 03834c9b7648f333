package auth

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidateLogin checks login format: at least three characters, not all
// numeric, no whitespace.
func ValidateLogin(login string) (string, error) {
	login = strings.TrimSpace(login)
	if len(login) < 3 {
		return "", fmt.Errorf("%w: login must be at least 3 characters", ErrValidation)
	}
	allDigits := true
	for _, c := range login {
		if unicode.IsSpace(c) {
			return "", fmt.Errorf("%w: login must not contain whitespace", ErrValidation)
		}
		if !unicode.IsDigit(c) {
			allDigits = false
		}
	}
	if allDigits {
		return "", fmt.Errorf("%w: login must not be numeric only", ErrValidation)
	}
	return login, nil
}

// ValidatePassword checks secret format: at least six characters with an
// upper-case letter, a lower-case letter and a digit; no whitespace or
// characters outside those classes.
func ValidatePassword(password string) (string, error) {
	if len(password) < 6 {
		return "", fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}
	var hasUpper, hasLower, hasDigit bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsLower(c):
			hasLower = true
		case unicode.IsDigit(c):
			hasDigit = true
		default:
			return "", fmt.Errorf("%w: password contains an invalid character", ErrValidation)
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return "", fmt.Errorf("%w: password needs upper, lower and digit characters", ErrValidation)
	}
	return password, nil
}

// ValidateEmail checks the minimal shape local@domain with a dotted domain.
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "", fmt.Errorf("%w: email must contain exactly one @", ErrValidation)
	}
	if local == "" || domain == "" {
		return "", fmt.Errorf("%w: email local and domain parts are required", ErrValidation)
	}
	if !strings.Contains(domain, ".") {
		return "", fmt.Errorf("%w: email domain is invalid", ErrValidation)
	}
	return email, nil
}
