package auth

import "errors"

var (
	// ErrInvalidToken indicates the session token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMissingSecret is returned when sessions are created without a signing secret.
	ErrMissingSecret = errors.New("auth: session secret is not configured")
)
