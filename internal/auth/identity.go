package auth

import (
	"context"
	"errors"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Identity is what an identity provider asserts about a bearer token.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// Verifier validates a bearer token issued by an external identity provider.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}
