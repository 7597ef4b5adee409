// Package client implements the HTTP client for the platform's auth and
// content endpoints. It owns wire encoding, bearer-token injection, error
// envelope parsing, and retry policy; session semantics live above it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/tekriderz/sessionkit/account"
)

const defaultTimeout = 15 * time.Second

// TokenSource supplies the current access token, or "" when none is held.
type TokenSource func() string

// Client talks to the backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	token      TokenSource
	retryMax   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTokenSource sets the supplier of the current access token.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// WithRetryMaxElapsed bounds how long idempotent requests are retried.
func WithRetryMaxElapsed(d time.Duration) Option {
	return func(c *Client) { c.retryMax = d }
}

// New returns a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		token:      func() string { return "" },
		retryMax:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthResult is the payload of every call that mints a session.
type AuthResult struct {
	Token        string        `json:"token"`
	RefreshToken string        `json:"refreshToken"`
	User         *account.User `json:"user"`
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var out AuthResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register starts a signup. The server answers with whether an OTP was
// sent; no session is minted until the OTP is verified.
func (c *Client) Register(ctx context.Context, reg *account.TempRegistration) (bool, error) {
	var out struct {
		OTPSent bool `json:"otpSent"`
	}
	body := map[string]string{
		"name":     reg.Name,
		"email":    reg.Email,
		"password": reg.Password,
		"role":     string(reg.Role),
	}
	if err := c.do(ctx, http.MethodPost, "/auth/register", body, &out); err != nil {
		return false, err
	}
	return out.OTPSent, nil
}

// VerifyOTP completes a signup and mints a session.
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (*AuthResult, error) {
	var out AuthResult
	body := map[string]string{"email": email, "otp": otp}
	if err := c.do(ctx, http.MethodPost, "/auth/verify-otp", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResendOTP asks the server to issue a fresh OTP for a pending signup.
func (c *Client) ResendOTP(ctx context.Context, email string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/resend-otp", map[string]string{"email": email}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Refresh exchanges a refresh token for a new session. Any client-side
// rejection by the server marks the refresh token as unusable.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	var out AuthResult
	body := map[string]string{"refreshToken": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", body, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			return nil, fmt.Errorf("%v: %w", err, ErrRefreshRejected)
		}
		return nil, err
	}
	return &out, nil
}

// Me fetches the current user, validating the held access token. Being
// idempotent, it is retried with exponential backoff on transient failure.
func (c *Client) Me(ctx context.Context) (*account.User, error) {
	var out struct {
		User *account.User `json:"user"`
	}
	if err := c.doIdempotent(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Logout notifies the server that the session is ending. Callers treat
// failure as non-fatal; the common case is a token that already expired.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// UpdateProfile sends a partial user update and returns the merged user.
func (c *Client) UpdateProfile(ctx context.Context, partial map[string]any) (*account.User, error) {
	var out struct {
		User *account.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPut, "/users/profile", partial, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// GetJSON fetches an arbitrary read-only endpoint, retried with backoff.
// The content cache uses it to populate namespaces like course lists.
func (c *Client) GetJSON(ctx context.Context, path string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.doIdempotent(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// doIdempotent wraps do with exponential backoff for safely retryable
// requests. Only transport-level failures are retried; an HTTP error
// response is a definitive answer.
func (c *Client) doIdempotent(ctx context.Context, method, path string, body, out any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.retryMax
	return backoff.Retry(func() error {
		err := c.do(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNetworkUnavailable) {
			c.logger.Debug("retrying after network failure", "method", method, "path", path)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Debug("request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, ErrNetworkUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

// parseErrorResponse reads a non-2xx body as {"error": {message, type}},
// falling back to a bare APIError when the body is not in that shape.
func parseErrorResponse(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil && json.Unmarshal(data, &envelope) == nil {
		apiErr.Message = envelope.Error.Message
		apiErr.Type = envelope.Error.Type
	}
	return apiErr
}
