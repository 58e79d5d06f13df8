package validator

import (
	"errors"
	"strings"
	"unicode"
)

const minPasswordLength = 8

// CheckPassword enforces the registration password policy: minimum length
// plus upper, lower and digit character classes.
func CheckPassword(password string) error {
	if len(password) < minPasswordLength {
		return errors.New("password must be at least 8 characters")
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
		}
	}

	if !hasUpper || !hasLower || !hasDigit {
		return errors.New("password must contain upper case, lower case and digit characters")
	}

	return nil
}

// CheckEmail does a structural sanity check only; deliverability is not
// this layer's concern.
func CheckEmail(email string) error {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || !strings.Contains(parts[1], ".") {
		return errors.New("invalid email format")
	}
	return nil
}
