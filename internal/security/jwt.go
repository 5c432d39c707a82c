// Package security signs and validates the bearer tokens guarding the
// admin surface.
package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token fails validation.
	ErrInvalidToken = errors.New("invalid token")
)

// AdminClaims are the claims carried by an admin bearer token.
type AdminClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// SignAdminToken issues an HS256 token for the named operator.
func SignAdminToken(secret, name string, expiry time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
		Name: name,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAdminToken validates the token signature and expiry and returns the
// claims.
func ParseAdminToken(secret, tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, errParse := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if errParse != nil {
		return nil, errParse
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
