// Package auth resolves bearer tokens to actors. Users present HS256 JWTs
// issued by the identity provider; the scheduler presents a static machine
// token stored as a bcrypt hash.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"skyguard/internal/types"
)

// Claims are the JWT claims SkyGuard reads. Subject carries the user ID.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 user tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
	clock  types.Clock
}

// NewTokenVerifier creates a verifier. An empty issuer skips the iss check.
func NewTokenVerifier(secret, issuer string, clock types.Clock) *TokenVerifier {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, clock: clock}
}

// Parse validates token and returns its claims. Expired tokens return
// auth_token_expired; everything else that fails returns auth_token_invalid.
func (v *TokenVerifier) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "Authentication token has expired", err)
	case err != nil:
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid authentication token", err)
	}

	if claims.Subject == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Token has no subject", nil)
	}
	return claims, nil
}

// Issue signs a token for userID. The identity provider issues production
// tokens; this serves local environments and tests.
func (v *TokenVerifier) Issue(userID string, role types.UserRole, ttl time.Duration) (string, error) {
	now := v.clock.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
