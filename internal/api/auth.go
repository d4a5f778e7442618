// Package api exposes a small read-only HTTP surface over a decoded
// timeseries dataset: health, Prometheus metrics, and record inspection
// endpoints, gated by a bearer JWT.
package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails parsing,
// signature verification, or claim validation.
var ErrInvalidToken = fmt.Errorf("invalid token")

// TokenClaims is the minimal claim set carried by an inspection-server
// session token: a subject and nothing else. There are no user
// accounts, roles, or subscription tiers in this server.
type TokenClaims struct {
	Subject string
}

// IssueToken mints an HS256 JWT for subject, signed with secret and
// expiring after ttl.
func IssueToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken parses and verifies tokenString, returning its claims.
func ValidateToken(secret []byte, tokenString string) (TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return TokenClaims{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return TokenClaims{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return TokenClaims{}, ErrInvalidToken
	}
	return TokenClaims{Subject: sub}, nil
}
