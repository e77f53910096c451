// Package auth resolves opaque bearer tokens to user identities.
//
// Token issuance lives in the platform's identity service; this package only
// verifies tokens and checks the account is active.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication failures. All of them are terminal: the caller refuses the
// connection or request and never retries.
var (
	ErrMissingToken    = errors.New("missing token")
	ErrInvalidToken    = errors.New("invalid token")
	ErrInactiveAccount = errors.New("account is not active")
)

// Identity is the resolved owner of a verified token.
type Identity struct {
	UserID string
	Status string
}

// Authenticator resolves a bearer token to a user identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// Claims is the JWT payload issued by the identity service.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// JWTAuthenticator verifies HMAC-signed JWTs against a shared secret.
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator creates an authenticator for the given signing secret.
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

// Authenticate verifies the token signature and expiry, and rejects accounts
// that are not active.
func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	if claims.UserID == "" {
		return Identity{}, ErrInvalidToken
	}
	if claims.Status != "active" {
		return Identity{}, ErrInactiveAccount
	}

	return Identity{UserID: claims.UserID, Status: claims.Status}, nil
}
