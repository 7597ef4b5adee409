package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidCredentials indicates the server rejected a login attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized indicates the server rejected the bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRefreshRejected indicates the server refused to honor the refresh
	// token. The session holding it is unrecoverable.
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrNetworkUnavailable indicates the request could not reach the
	// server at all.
	ErrNetworkUnavailable = errors.New("network unavailable")
)

// APIError is a structured error parsed from a non-2xx response body of the
// form {"error": {"message": ..., "type": ...}}.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (%d %s): %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

// Unwrap maps well-known server error types onto sentinel errors so
// callers can branch with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Type {
	case "invalid_credentials":
		return ErrInvalidCredentials
	case "invalid_refresh_token":
		return ErrRefreshRejected
	}
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}
