package core

import (
	"net/mail"
	"strings"
)

const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

// ValidateEmail checks that email is a bare address ("a@b.c", no display name).
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmailRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateNewPassword applies the length policy for new passwords.
func ValidateNewPassword(password string) error {
	switch {
	case password == "":
		return ErrPasswordRequired
	case len(password) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(password) > MaxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}
