package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessExpiry reads the exp claim of a JWT access token without verifying
// the signature; the API stays the authority on validity. ok is false for
// opaque tokens or tokens without exp.
func accessExpiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
