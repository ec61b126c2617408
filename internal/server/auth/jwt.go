// Package auth issues and checks the API keys of the reference server.
// Keys are HS256 JWTs carrying a role claim, in the manner of PostgREST.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/tendercrm/internal/common"
)

// Role is the access level granted by a key.
type Role string

const (
	// RoleAnon may only read.
	RoleAnon          Role = "anon"
	RoleAuthenticated Role = "authenticated"
	RoleService       Role = "service_role"
)

// ParseRole validates s.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAnon, RoleAuthenticated, RoleService:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// CanWrite reports whether r may insert, update and delete rows.
func (r Role) CanWrite() bool {
	return r == RoleAuthenticated || r == RoleService
}

// Claims are the standard claims plus the role.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// GenerateKey signs a key for role. A zero validity produces a key that
// never expires.
func GenerateKey(role Role, secretKey []byte, validity time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "tendercrm",
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	if validity != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(validity))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
}

// RoleFromKey verifies key and returns its role. Expired keys yield
// common.ErrTokenExpired, everything else that fails common.ErrInvalidToken.
func RoleFromKey(key string, secretKey []byte) (Role, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(key, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	role, err := ParseRole(string(claims.Role))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	return role, nil
}
