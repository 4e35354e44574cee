package services

import "errors"

var (
	ErrMissingCredentials = errors.New("project id, token and user are required")
	ErrSessionClosed      = errors.New("collaboration session closed")
	ErrAuthRejected       = errors.New("server rejected the session token")
	ErrTokenExpired       = errors.New("session token expired")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNoActiveProject    = errors.New("no active project")
	ErrInvalidProject     = errors.New("invalid project")
)
