package services

import (
	"context"
	"fmt"
	"sync"

	"wbs/collab-client/clock"
	"wbs/collab-client/db"
	"wbs/collab-client/models"
	"wbs/collab-client/utils"
)

// AuthAPI is the part of the backend client the auth layer uses.
type AuthAPI interface {
	AuthenticateGoogle(ctx context.Context, googleToken string) (*models.AuthResponse, error)
	Verify(ctx context.Context, token string) bool
	SetToken(token string)
}

// AuthService owns the session token: it signs in, restores a persisted
// session and hands the token to the API client.
type AuthService struct {
	api    AuthAPI
	store  StateStore
	clock  clock.Clock
	logger *utils.Logger

	mu    sync.RWMutex
	token string
	user  models.User
}

func NewAuthService(api AuthAPI, store StateStore, c clock.Clock, logger *utils.Logger) *AuthService {
	if c == nil {
		c = clock.Real()
	}
	return &AuthService{api: api, store: store, clock: c, logger: logger}
}

// Login exchanges a Google credential for a session token and persists it.
func (s *AuthService) Login(ctx context.Context, googleToken string) (models.User, error) {
	if googleToken == "" {
		return models.User{}, fmt.Errorf("%w: google token is required", ErrMissingCredentials)
	}

	resp, err := s.api.AuthenticateGoogle(ctx, googleToken)
	if err != nil {
		return models.User{}, fmt.Errorf("login failed: %w", err)
	}

	user := resp.User
	if user.Email == "" {
		if claims, err := InspectToken(resp.AccessToken); err == nil {
			user = claims.User
		}
	}
	if user.Email == "" {
		return models.User{}, fmt.Errorf("%w: session carries no user identity", ErrNotAuthenticated)
	}

	if err := s.store.Set(ctx, db.KeyAccessToken, resp.AccessToken); err != nil {
		s.logger.Warn("Failed to persist session token", "error", err)
	}
	s.set(resp.AccessToken, user)

	s.logger.Info("Signed in", "email", user.Email)
	return user, nil
}

// Restore resumes the persisted session. A token the backend no longer
// accepts is removed.
func (s *AuthService) Restore(ctx context.Context) (models.User, error) {
	token, ok, err := s.store.Get(ctx, db.KeyAccessToken)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to read session token: %w", err)
	}
	if !ok || token == "" {
		return models.User{}, ErrNotAuthenticated
	}

	claims, claimsErr := InspectToken(token)
	if claimsErr == nil && claims.Expired(s.clock.Now()) {
		s.forget(ctx)
		return models.User{}, ErrTokenExpired
	}

	if !s.api.Verify(ctx, token) {
		s.forget(ctx)
		return models.User{}, fmt.Errorf("%w: saved session was rejected", ErrNotAuthenticated)
	}
	if claimsErr != nil || claims.User.Email == "" {
		return models.User{}, fmt.Errorf("%w: session carries no user identity", ErrNotAuthenticated)
	}

	s.set(token, claims.User)
	s.logger.Info("Session restored", "email", claims.User.Email)
	return claims.User, nil
}

func (s *AuthService) Logout(ctx context.Context) {
	s.forget(ctx)
	s.logger.Info("Signed out")
}

func (s *AuthService) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *AuthService) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.token != ""
}

func (s *AuthService) set(token string, user models.User) {
	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()
	s.api.SetToken(token)
}

func (s *AuthService) forget(ctx context.Context) {
	if err := s.store.Delete(ctx, db.KeyAccessToken); err != nil {
		s.logger.Warn("Failed to delete session token", "error", err)
	}
	s.set("", models.User{})
}
