// Package auth verifies bearer tokens. Token issuance lives in the external
// auth service; the arena only checks the signature and reads the identity.
package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// Claims is the token payload the arena reads.
type Claims struct {
	jwt.RegisteredClaims
	IsAdmin bool `json:"admin,omitempty"`
}

// Identity is a verified caller.
type Identity struct {
	UserID  shared.UserID
	IsAdmin bool
}

// Verifier checks HS256 bearer tokens against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a token verifier.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token string, returning the caller identity.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, shared.NewDomainError("auth", "Verify", shared.ErrUnauthorized, "missing token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, shared.WrapError("auth", "Verify", shared.ErrUnauthorized, "invalid token", err)
	}

	userID, err := shared.NewUserID(claims.Subject)
	if err != nil {
		return nil, shared.NewDomainError("auth", "Verify", shared.ErrUnauthorized, "token has no subject")
	}
	return &Identity{UserID: userID, IsAdmin: claims.IsAdmin}, nil
}
