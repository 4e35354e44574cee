package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wbs/collab-client/models"
)

// TokenClaims is what the agent reads out of a session token. The
// backend holds the signing key, so the token is inspected, not verified;
// verification is the auth service's job.
type TokenClaims struct {
	User      models.User
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry before now.
func (c TokenClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// InspectToken extracts identity and expiry from a JWT session token.
// Opaque (non-JWT) tokens return an error.
func InspectToken(token string) (TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenClaims{}, fmt.Errorf("failed to parse session token: %w", err)
	}

	var out TokenClaims
	if email, ok := claims["email"].(string); ok {
		out.User.Email = email
	} else if sub, err := claims.GetSubject(); err == nil {
		out.User.Email = sub
	}
	if name, ok := claims["name"].(string); ok {
		out.User.Name = name
	}
	if role, ok := claims["role"].(string); ok {
		out.User.Role = models.Role(role)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
