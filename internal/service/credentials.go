package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/port"
)

// Registration and password policy.
const (
	minUsernameLen  = 3
	minPasswordLen  = 8
	maxPasswordLen  = 16
	passwordSymbols = `!@#$%^&*(),.?":{}|<>`
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	emailPattern    = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)
)

// Credentials wraps the hashing capability with the password policy.
type Credentials struct {
	hasher port.PasswordHasher
}

// NewCredentials creates a credential service.
func NewCredentials(hasher port.PasswordHasher) *Credentials {
	return &Credentials{hasher: hasher}
}

// Hash produces a salted digest of plaintext.
func (c *Credentials) Hash(plaintext string) (string, error) {
	digest, err := c.hasher.Hash(plaintext)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return digest, nil
}

// Verify reports whether plaintext matches digest.
func (c *Credentials) Verify(plaintext, digest string) bool {
	return c.hasher.Verify(plaintext, digest)
}

// ValidateUsername checks length, charset and that the name is not purely
// numeric.
func ValidateUsername(username string) error {
	if len(username) < minUsernameLen || isAllDigits(username) || !usernamePattern.MatchString(username) {
		return &domain.ErrValidation{Field: "username", Message: "invalid username format"}
	}
	return nil
}

// ValidateEmail checks the address shape only. Deliverability is proven by
// the confirmation link.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return &domain.ErrValidation{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidatePassword enforces the strength policy and names the first rule
// that failed.
func ValidatePassword(password string) error {
	fail := func(msg string) error {
		return &domain.ErrValidation{Field: "password", Message: "password does not meet strength requirements: " + msg}
	}

	n := utf8.RuneCountInString(password)
	if n < minPasswordLen || n > maxPasswordLen {
		return fail(fmt.Sprintf("must be %d to %d characters", minPasswordLen, maxPasswordLen))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}

	switch {
	case !upper:
		return fail("needs an uppercase letter")
	case !lower:
		return fail("needs a lowercase letter")
	case !digit:
		return fail("needs a digit")
	case !symbol:
		return fail("needs one of " + passwordSymbols)
	}
	return nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
