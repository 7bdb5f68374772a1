package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// WildcardChannel in a token's channel claim grants every channel.
const WildcardChannel = "*"

// DefaultLeeway is the clock skew tolerated when validating tokens.
const DefaultLeeway = 5 * time.Second

// ChannelClaims are the claims a relay token carries.
type ChannelClaims struct {
	Channel string `json:"channel"`
	jwt.RegisteredClaims
}

// JWTConfig configures a JWTAuthorizer.
type JWTConfig struct {
	// Secret is the HMAC signing key.
	Secret []byte

	// Leeway tolerates clock skew. Zero uses DefaultLeeway.
	Leeway time.Duration

	// RequireExpiration rejects tokens without an exp claim.
	RequireExpiration bool
}

// JWTAuthorizer admits handshakes carrying a valid HMAC-signed token
// whose channel claim matches the claimed channel or is "*".
type JWTAuthorizer struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTAuthorizer creates a JWTAuthorizer.
func NewJWTAuthorizer(cfg JWTConfig) (*JWTAuthorizer, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrMissingSecret
	}
	leeway := cfg.Leeway
	if leeway == 0 {
		leeway = DefaultLeeway
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(leeway),
	}
	if cfg.RequireExpiration {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	return &JWTAuthorizer{
		secret: append([]byte(nil), cfg.Secret...),
		parser: jwt.NewParser(opts...),
	}, nil
}

// Authorize implements Authorizer.
// Malformed, expired or wrongly signed tokens deny rather than error:
// they are the client's fault, not the relay's.
func (a *JWTAuthorizer) Authorize(_ context.Context, hs Handshake) (bool, error) {
	if hs.Token == "" {
		return false, nil
	}

	claims := &ChannelClaims{}
	_, err := a.parser.ParseWithClaims(hs.Token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return false, nil
	}
	if claims.Channel == "" {
		return false, nil
	}
	return claims.Channel == WildcardChannel || claims.Channel == hs.Channel, nil
}

// IssueToken signs a token granting channel, for provisioning and tests.
// A zero ttl issues a token without expiry.
func IssueToken(secret []byte, channel string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingSecret
	}
	if channel == "" {
		return "", ErrChannelMissing
	}

	now := time.Now()
	claims := ChannelClaims{
		Channel: channel,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
