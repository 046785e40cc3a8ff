package session

import "errors"

var (
	// ErrInvalidToken is returned when a token fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token verified but its expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)
