package domain

import "errors"

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenVerifier validates a bearer token and returns the user ID it was issued to.
type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}
