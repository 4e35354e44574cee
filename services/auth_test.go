package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wbs/collab-client/clock"
	"wbs/collab-client/config"
	"wbs/collab-client/db"
	"wbs/collab-client/models"
)

type fakeAuthAPI struct {
	token              string
	authenticateGoogle func(ctx context.Context, googleToken string) (*models.AuthResponse, error)
	verify             func(ctx context.Context, token string) bool
}

func (f *fakeAuthAPI) AuthenticateGoogle(ctx context.Context, googleToken string) (*models.AuthResponse, error) {
	return f.authenticateGoogle(ctx, googleToken)
}

func (f *fakeAuthAPI) Verify(ctx context.Context, token string) bool {
	return f.verify(ctx, token)
}

func (f *fakeAuthAPI) SetToken(token string) {
	f.token = token
}

func newSQLiteStore(t *testing.T) *db.Store {
	t.Helper()

	database, err := db.Connect(&config.Config{
		DatabaseURL: filepath.Join(t.TempDir(), "collab.db"),
	})
	if err != nil {
		t.Fatalf("db.Connect: %v", err)
	}
	store := db.NewStore(database)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLoginPersistsSession(t *testing.T) {
	t.Parallel()

	store := newSQLiteStore(t)
	api := &fakeAuthAPI{
		authenticateGoogle: func(_ context.Context, googleToken string) (*models.AuthResponse, error) {
			if googleToken != "google-cred" {
				t.Errorf("unexpected google token %q", googleToken)
			}
			return &models.AuthResponse{
				AccessToken: "session-token",
				User:        models.User{Email: "a@x.com", Name: "Ann"},
			}, nil
		},
	}
	svc := NewAuthService(api, store, clock.Fake(epoch), testLogger())
	ctx := context.Background()

	if _, err := svc.Login(ctx, ""); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}

	user, err := svc.Login(ctx, "google-cred")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.Email != "a@x.com" || svc.Token() != "session-token" || api.token != "session-token" {
		t.Fatalf("session not installed: user=%+v token=%q api=%q", user, svc.Token(), api.token)
	}
	if saved, ok, err := store.Get(ctx, db.KeyAccessToken); err != nil || !ok || saved != "session-token" {
		t.Fatalf("token not persisted: %q %v %v", saved, ok, err)
	}

	svc.Logout(ctx)
	if _, ok := svc.User(); ok || api.token != "" {
		t.Fatalf("logout left a session behind")
	}
	if _, ok, _ := store.Get(ctx, db.KeyAccessToken); ok {
		t.Fatalf("logout must delete the persisted token")
	}
}

func TestRestoreSession(t *testing.T) {
	t.Parallel()

	valid := signedToken(t, jwt.MapClaims{"email": "a@x.com", "name": "Ann", "exp": epoch.Add(time.Hour).Unix()})
	expired := signedToken(t, jwt.MapClaims{"email": "a@x.com", "exp": epoch.Add(-time.Hour).Unix()})

	tests := []struct {
		name     string
		saved    string
		verified bool
		wantErr  error
		kept     bool
	}{
		{name: "valid", saved: valid, verified: true, kept: true},
		{name: "nothing saved", wantErr: ErrNotAuthenticated},
		{name: "rejected", saved: valid, verified: false, wantErr: ErrNotAuthenticated},
		{name: "expired", saved: expired, verified: true, wantErr: ErrTokenExpired},
		{name: "opaque", saved: "opaque", verified: true, wantErr: ErrNotAuthenticated, kept: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := newMemStore()
			if tt.saved != "" {
				store.Set(ctx, db.KeyAccessToken, tt.saved)
			}
			api := &fakeAuthAPI{verify: func(context.Context, string) bool { return tt.verified }}
			svc := NewAuthService(api, store, clock.Fake(epoch), testLogger())

			user, err := svc.Restore(ctx)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else {
				if err != nil {
					t.Fatalf("Restore: %v", err)
				}
				if user.Email != "a@x.com" || user.Name != "Ann" || api.token != tt.saved {
					t.Fatalf("unexpected restored session %+v token=%q", user, api.token)
				}
			}

			_, ok, _ := store.Get(ctx, db.KeyAccessToken)
			if tt.saved != "" && ok != tt.kept {
				t.Fatalf("expected token kept=%v, got %v", tt.kept, ok)
			}
		})
	}
}
