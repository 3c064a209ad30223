package auth

import (
	"time"

	"campus-chat/domain/chat"
	"campus-chat/errors"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims carries the identity asserted by the external identity provider.
type CustomClaims struct {
	UserID       string `json:"user_id"`
	DisplayName  string `json:"name,omitempty"`
	PlatformRole string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens with a shared secret.
type TokenIssuer struct {
	secret []byte
	issuer string
}

func NewTokenIssuer(secret, issuer string) TokenIssuer {
	return TokenIssuer{secret: []byte(secret), issuer: issuer}
}

// GenerateToken is used by the client tooling and by tests; production
// tokens come from the identity provider sharing the same secret.
func (t TokenIssuer) GenerateToken(identity chat.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID:       identity.UserID,
		DisplayName:  identity.DisplayName,
		PlatformRole: identity.PlatformRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    t.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// ValidateToken checks the signature, the expiry and the issuer, then returns
// the identity the token was issued for.
func (t TokenIssuer) ValidateToken(tokenString string) (chat.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(t.issuer))
	if err != nil {
		return chat.Identity{}, errors.Wrap(errors.KindPermission, "invalid_token", "invalid or expired token", err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return chat.Identity{}, errors.Permission("invalid_token", "token carries no user")
	}
	return chat.Identity{
		UserID:       claims.UserID,
		DisplayName:  claims.DisplayName,
		PlatformRole: claims.PlatformRole,
	}, nil
}
