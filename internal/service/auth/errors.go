package auth

import "errors"

// Common authentication service errors
var (
	// ErrInvalidToken indicates the token format is invalid or signature doesn't match
	ErrInvalidToken = errors.New("invalid bearer token")

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = errors.New("bearer token has expired")

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf claim in the future)
	ErrTokenNotYetValid = errors.New("bearer token not yet valid")

	// ErrMissingToken indicates a token was expected but not provided
	ErrMissingToken = errors.New("bearer token is missing")

	// ErrInvalidAdminKey indicates the presented admin key does not match
	// the configured hash
	ErrInvalidAdminKey = errors.New("invalid admin key")
)
