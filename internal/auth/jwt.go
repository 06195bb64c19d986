package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken is returned when no access token is held.
	ErrNoToken = errors.New("auth: no access token")
	// ErrTokenExpired is returned for tokens past their exp claim.
	ErrTokenExpired = errors.New("auth: access token expired")
	// ErrMalformedToken is returned when the token is not a JWT.
	ErrMalformedToken = errors.New("auth: malformed access token")
)

// Claims represents the backend's access token payload. The agent cannot
// verify the signature; it reads the claims only to learn who is signed in
// and when the token lapses.
type Claims struct {
	EmployeeID string `json:"employeeId,omitempty"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Inspect decodes an access token without verifying it and checks expiry
// against now.
func Inspect(tokenStr string, now time.Time) (Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return Claims{}, ErrNoToken
	}
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &claims); err != nil {
		return Claims{}, errors.Join(ErrMalformedToken, err)
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

// Identity returns the best identifier the token carries.
func (c Claims) Identity() string {
	switch {
	case c.EmployeeID != "":
		return c.EmployeeID
	case c.Subject != "":
		return c.Subject
	default:
		return c.Email
	}
}
