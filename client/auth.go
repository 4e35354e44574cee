package client

import (
	"context"
	"fmt"
	"net/http"

	"wbs/collab-client/models"
)

// AuthenticateGoogle exchanges a Google credential for a session token.
func (c *Client) AuthenticateGoogle(ctx context.Context, googleToken string) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/auth/google",
		body:     map[string]string{"token": googleToken},
		fallback: "Authentication failed",
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("authentication response carried no access token")
	}
	return &resp, nil
}

// Verify reports whether the backend accepts token. Any failure,
// including transport errors, counts as not verified.
func (c *Client) Verify(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/auth/verify",
		token:    token,
		fallback: "Token verification failed",
	}, nil)
	return err == nil
}
