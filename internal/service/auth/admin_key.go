package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// KeyVerifier defines the interface for checking operator admin keys
// against their stored hash.
type KeyVerifier interface {
	// Compare compares a hashed admin key with its possible plaintext
	// equivalent. Returns nil on success, ErrInvalidAdminKey on mismatch,
	// or another error if the stored hash itself is unusable.
	Compare(hashedKey, key string) error
}

// BcryptVerifier implements KeyVerifier using bcrypt.
type BcryptVerifier struct{}

// NewBcryptVerifier creates a new BcryptVerifier.
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{}
}

// Compare implements the KeyVerifier interface using bcrypt.
func (v *BcryptVerifier) Compare(hashedKey, key string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(key))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidAdminKey
		}
		// Anything else means the configured hash is broken, not that the
		// key was wrong; callers should surface it rather than deny.
		return err
	}
	return nil
}
