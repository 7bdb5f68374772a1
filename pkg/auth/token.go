package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// TokenAuthorizer admits handshakes whose token matches a bcrypt hash.
type TokenAuthorizer struct {
	hash []byte
}

// NewTokenAuthorizer creates a TokenAuthorizer from a bcrypt hash.
// The hash is checked for a valid cost so that a bad configuration
// fails at startup rather than on the first connection.
func NewTokenAuthorizer(hash string) (*TokenAuthorizer, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	return &TokenAuthorizer{hash: []byte(hash)}, nil
}

// HashToken returns the bcrypt hash for token, for provisioning.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(h), nil
}

// Authorize implements Authorizer.
// A missing or wrong token denies. A corrupt hash is an error.
func (a *TokenAuthorizer) Authorize(_ context.Context, hs Handshake) (bool, error) {
	if hs.Token == "" {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword(a.hash, []byte(hs.Token))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
}
