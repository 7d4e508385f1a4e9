package validation

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

var (
	// ErrEmailRequired is returned when an email is empty
	ErrEmailRequired = errors.New("email is required")

	// ErrEmailInvalid is returned when an email fails to parse
	ErrEmailInvalid = errors.New("invalid email address")

	// ErrEmailTooLong is returned when an email exceeds the RFC length limit
	ErrEmailTooLong = errors.New("email is too long")

	// ErrPasswordTooShort is returned when a password is under 8 characters
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")

	nonSlugChars   = regexp.MustCompile(`[^a-z0-9]+`)
	hyphenCollapse = regexp.MustCompile(`-{2,}`)
)

// NormalizeEmail trims, lowercases, and validates an email address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrEmailRequired
	}
	if len(email) > 320 {
		return "", ErrEmailTooLong
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrEmailInvalid
	}
	return email, nil
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}

// Slugify converts arbitrary text into a URL-safe slug: lowercase
// alphanumerics separated by single hyphens.
func Slugify(text string) string {
	slug := strings.ToLower(strings.TrimSpace(text))
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	slug = hyphenCollapse.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
