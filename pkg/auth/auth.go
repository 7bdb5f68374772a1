package auth

import (
	"context"
	"errors"
)

// Handshake describes a connection asking to be admitted.
type Handshake struct {
	ConnID     string
	Channel    string
	Token      string
	RemoteAddr string
}

// Authorizer decides whether a handshake is admitted.
type Authorizer interface {
	Authorize(ctx context.Context, hs Handshake) (bool, error)
}

// Errors returned by the stock policies.
var (
	ErrMissingToken   = errors.New("missing token")
	ErrInvalidHash    = errors.New("invalid token hash")
	ErrMissingSecret  = errors.New("missing signing secret")
	ErrChannelMissing = errors.New("channel claim missing from token")
)

// Func adapts a function to the Authorizer interface.
type Func func(ctx context.Context, hs Handshake) (bool, error)

// Authorize calls f.
func (f Func) Authorize(ctx context.Context, hs Handshake) (bool, error) {
	return f(ctx, hs)
}

type allowAll struct{}

func (allowAll) Authorize(context.Context, Handshake) (bool, error) { return true, nil }

// AllowAll admits every handshake.
var AllowAll Authorizer = allowAll{}

// Verify interface compliance at compile time.
var (
	_ Authorizer = Func(nil)
	_ Authorizer = (*TokenAuthorizer)(nil)
	_ Authorizer = (*JWTAuthorizer)(nil)
)
