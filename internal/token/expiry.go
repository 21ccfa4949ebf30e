package token

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Expiry reads the "exp" claim of a JWT access token without verifying its
// signature. Opaque tokens, and JWTs without an expiry, report false.
func Expiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}

	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}
