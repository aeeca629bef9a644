package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the user claims we care about from an access token.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	ExpiresAt int64
	IssuedAt  int64
}

// ExtractClaims extracts user information from a JWT access token without
// verification. This is display-only data; the token was already accepted
// by the authorization server and is never trusted for authorization
// decisions locally.
func ExtractClaims(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	token, _, err := parser.ParseUnverified(tokenString, &jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	mapClaims, ok := token.Claims.(*jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	claims := &Claims{}
	if sub, ok := (*mapClaims)["sub"].(string); ok {
		claims.Subject = sub
	}
	if email, ok := (*mapClaims)["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := (*mapClaims)["name"].(string); ok {
		claims.Name = name
	}
	if exp, ok := (*mapClaims)["exp"].(float64); ok {
		claims.ExpiresAt = int64(exp)
	}
	if iat, ok := (*mapClaims)["iat"].(float64); ok {
		claims.IssuedAt = int64(iat)
	}

	return claims, nil
}

// DisplayName returns the best available human-readable identity.
func (c *Claims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}
