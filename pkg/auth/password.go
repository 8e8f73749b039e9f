package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordRequired is returned for empty or whitespace-only passwords.
var ErrPasswordRequired = errors.New("password required")

// ErrPasswordTooLong is returned when the password exceeds bcrypt's input limit.
var ErrPasswordTooLong = errors.New("password must be at most 72 bytes")

// HashPassword returns a salted bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword validates a password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword rejects passwords bcrypt cannot hash meaningfully.
func ValidatePassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrPasswordRequired
	}
	if len(password) > 72 {
		return ErrPasswordTooLong
	}
	return nil
}
