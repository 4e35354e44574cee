package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wbs/collab-client/models"
)

func TestInspectToken(t *testing.T) {
	t.Parallel()

	exp := epoch.Add(time.Hour)
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   models.User
	}{
		{
			name:   "email claim",
			claims: jwt.MapClaims{"email": "a@x.com", "name": "Ann", "role": "Admin", "exp": exp.Unix()},
			want:   models.User{Email: "a@x.com", Name: "Ann", Role: models.RoleAdmin},
		},
		{
			name:   "subject fallback",
			claims: jwt.MapClaims{"sub": "b@x.com", "exp": exp.Unix()},
			want:   models.User{Email: "b@x.com"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims, err := InspectToken(signedToken(t, tt.claims))
			if err != nil {
				t.Fatalf("InspectToken: %v", err)
			}
			if claims.User != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, claims.User)
			}
			if !claims.ExpiresAt.Equal(exp) {
				t.Fatalf("unexpected expiry %v", claims.ExpiresAt)
			}
			if claims.Expired(epoch) {
				t.Fatalf("token should not be expired yet")
			}
			if !claims.Expired(exp) {
				t.Fatalf("token should be expired at exp")
			}
		})
	}
}

func TestInspectTokenOpaque(t *testing.T) {
	t.Parallel()

	if _, err := InspectToken("not-a-jwt"); err == nil {
		t.Fatalf("expected an error for an opaque token")
	}
}

func TestTokenWithoutExpiryNeverExpires(t *testing.T) {
	t.Parallel()

	claims, err := InspectToken(signedToken(t, jwt.MapClaims{"email": "a@x.com"}))
	if err != nil {
		t.Fatalf("InspectToken: %v", err)
	}
	if claims.Expired(epoch.Add(100 * 365 * 24 * time.Hour)) {
		t.Fatalf("token without exp must not expire")
	}
}
