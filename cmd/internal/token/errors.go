package token

import "errors"

var (
	// ErrInvalidToken is returned when a token is missing, malformed, expired,
	// signed with the wrong key, or carries a superseded jti.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned for invalid authority configuration.
	ErrConfig = errors.New("invalid token config")
)
