// Package session orchestrates login, registration, logout, and token
// refresh. The Manager owns the in-memory session state, writes
// credentials through the vault, and runs the background refresh
// scheduler while a session is live. UI surfaces consume read-only
// snapshots and a change notification channel; nothing else mutates
// session state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/tekriderz/sessionkit/account"
	"github.com/tekriderz/sessionkit/client"
	"github.com/tekriderz/sessionkit/navigate"
	"github.com/tekriderz/sessionkit/vault"
)

// API is the backend surface the manager talks to. *client.Client
// satisfies it.
type API interface {
	Login(ctx context.Context, email, password string) (*client.AuthResult, error)
	Register(ctx context.Context, reg *account.TempRegistration) (bool, error)
	VerifyOTP(ctx context.Context, email, otp string) (*client.AuthResult, error)
	ResendOTP(ctx context.Context, email string) (string, error)
	Refresh(ctx context.Context, refreshToken string) (*client.AuthResult, error)
	Me(ctx context.Context) (*account.User, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, partial map[string]any) (*account.User, error)
}

// Manager is the single owner of session state.
type Manager struct {
	api    API
	vault  *vault.Vault
	logger *slog.Logger

	refreshInterval  time.Duration
	validateInterval time.Duration
	refreshMargin    time.Duration

	group singleflight.Group

	mu          sync.Mutex
	state       State
	user        *account.User
	accessToken string
	tokenExpiry time.Time
	generation  uint64
	sched       *scheduler
	subs        map[int]chan Snapshot
	nextSub     int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger. If not set, a JSON logger writing
// to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithIntervals overrides the scheduler's refresh and revalidation
// periods. Zero values keep the defaults (12 and 5 minutes).
func WithIntervals(refresh, validate time.Duration) Option {
	return func(m *Manager) {
		if refresh > 0 {
			m.refreshInterval = refresh
		}
		if validate > 0 {
			m.validateInterval = validate
		}
	}
}

// New returns a Manager in the Unauthenticated state. Wire the API
// client's token source to Token so authenticated calls carry the current
// access token:
//
//	var m *session.Manager
//	api := client.New(url, client.WithTokenSource(func() string { return m.Token() }))
//	m = session.New(api, v)
func New(api API, v *vault.Vault, opts ...Option) *Manager {
	m := &Manager{
		api:              api,
		vault:            v,
		logger:           slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		refreshInterval:  12 * time.Minute,
		validateInterval: 5 * time.Minute,
		refreshMargin:    3 * time.Minute,
		subs:             make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns the current access token, or "" when no session is held.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

// Snapshot returns the current read-only session view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, User: m.user.Clone()}
}

// Subscribe registers a state-change listener. Notifications that cannot
// be delivered immediately are dropped; listeners needing the latest
// state call Snapshot. The returned func unsubscribes.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Snapshot, 8)
	m.subs[id] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) notifyLocked() {
	snap := Snapshot{State: m.state, User: m.user.Clone()}
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Initialize restores a session persisted by a previous process. It first
// attempts a refresh (the access token commonly expires while the process
// is down; the refresh token outlives it by days); if the refresh fails
// it falls back to validating the stored access token directly, and when
// the network is unreachable it trusts a still-unexpired stored token
// outright. Only an explicit server rejection clears the vault.
// Initialize never returns an authentication error; the outcome is
// observed through the session state.
func (m *Manager) Initialize(ctx context.Context) error {
	stored, err := m.vault.LoadSession(ctx)
	if err != nil {
		return nil
	}

	// Hold the stored token in memory so the fallback /auth/me call can
	// carry it, without yet announcing an authenticated state.
	m.mu.Lock()
	m.accessToken = stored.AccessToken
	m.mu.Unlock()

	var refreshErr error
	if stored.RefreshToken != "" {
		res, err := m.api.Refresh(ctx, stored.RefreshToken)
		if err == nil {
			m.adoptSession(ctx, res)
			return nil
		}
		refreshErr = err
		m.logger.Info("startup refresh failed, validating stored token", "error", err)
	}

	if stored.AccessToken == "" {
		// The access token aged out while the process was down and the
		// refresh could not mint a new one. Offline is not a rejection:
		// keep the vault so the next start retries the same refresh token.
		if errors.Is(refreshErr, client.ErrNetworkUnavailable) {
			m.mu.Lock()
			m.accessToken = ""
			m.mu.Unlock()
			return nil
		}
		m.logger.Info("stored session unusable, clearing vault", "error", refreshErr)
		m.clearStored(ctx)
		return nil
	}

	user, err := m.api.Me(ctx)
	switch {
	case err == nil:
		stored.User = user
		m.adoptStored(ctx, stored)
		return nil
	case errors.Is(err, client.ErrNetworkUnavailable):
		// Offline start: trust the locally stored, still-unexpired token.
		m.logger.Warn("starting offline with stored credentials")
		m.adoptStored(ctx, stored)
		return nil
	default:
		m.logger.Info("stored session rejected by server, clearing vault", "error", err)
		m.clearStored(ctx)
		return nil
	}
}

func (m *Manager) clearStored(ctx context.Context) {
	if err := m.vault.Clear(ctx); err != nil {
		m.logger.Warn("clearing vault", "error", err)
	}
	m.mu.Lock()
	m.accessToken = ""
	m.mu.Unlock()
}

// Login exchanges credentials for a session and resolves the post-login
// redirect. On failure the session state is untouched and the error is
// surfaced to the caller.
func (m *Manager) Login(ctx context.Context, email, password, intendedPath string) (string, error) {
	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	m.adoptSession(ctx, res)
	return navigate.Resolve(res.User.Role, intendedPath), nil
}

// Signup starts a registration and parks the input as a temporary
// registration record until the OTP is verified. It does not
// authenticate.
func (m *Manager) Signup(ctx context.Context, reg *account.TempRegistration) error {
	otpSent, err := m.api.Register(ctx, reg)
	if err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	if !otpSent {
		m.logger.Warn("server did not send otp", "email", reg.Email)
	}
	if err := m.vault.StoreTempRegistration(ctx, reg); err != nil {
		m.logger.Warn("temp registration not persisted", "error", err)
	}
	m.mu.Lock()
	m.state = OtpPending
	m.notifyLocked()
	m.mu.Unlock()
	return nil
}

// VerifyOTP completes a pending registration. It requires a stored
// registration matching the email; one that is absent, mismatched, or
// expired mid-flow fails with ErrInvalidOTPSession. A server rejection of
// the code leaves the pending registration intact so the user can retry.
func (m *Manager) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	reg, err := m.vault.LoadTempRegistration(ctx)
	if err != nil || !strings.EqualFold(reg.Email, email) {
		return "", ErrInvalidOTPSession
	}

	res, err := m.api.VerifyOTP(ctx, email, code)
	if err != nil {
		return "", fmt.Errorf("verifying otp: %w", err)
	}

	if err := m.vault.DeleteTempRegistration(ctx); err != nil {
		m.logger.Warn("deleting temp registration", "error", err)
	}
	m.adoptSession(ctx, res)
	return navigate.Resolve(res.User.Role, ""), nil
}

// ResendOTP asks the server to reissue the code for a pending signup.
// Local state is untouched.
func (m *Manager) ResendOTP(ctx context.Context, email string) error {
	if _, err := m.api.ResendOTP(ctx, email); err != nil {
		return fmt.Errorf("resending otp: %w", err)
	}
	return nil
}

// Refresh renews the access token using the stored refresh token.
// Concurrent callers collapse onto one in-flight network request and share
// its outcome, so refresh-token rotation is never raced. A failed refresh
// is proof the session is unrecoverable and triggers Logout.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.group.Do("refresh", func() (any, error) {
		return nil, m.doRefresh(ctx)
	})
	return err
}

func (m *Manager) doRefresh(ctx context.Context) error {
	m.mu.Lock()
	gen := m.generation
	if m.state == Authenticated {
		m.state = Refreshing
		m.notifyLocked()
	}
	m.mu.Unlock()

	refreshToken, err := m.vault.LoadRefreshToken(ctx)
	if err != nil {
		m.logger.Info("refresh impossible: no refresh token")
		m.Logout(ctx)
		return ErrNoRefreshToken
	}

	res, err := m.api.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, client.ErrNetworkUnavailable) {
			// Offline is not proof of revocation; keep the session and
			// let a later tick retry.
			m.mu.Lock()
			if m.state == Refreshing && m.generation == gen {
				m.state = Authenticated
				m.notifyLocked()
			}
			m.mu.Unlock()
			return fmt.Errorf("refresh: %w", err)
		}
		m.logger.Info("refresh rejected, ending session", "error", err)
		m.Logout(ctx)
		return fmt.Errorf("refresh: %w", err)
	}

	if !m.adoptSessionGen(ctx, res, gen) {
		// The session was cleared while the refresh was in flight; the
		// result must not resurrect it.
		return ErrNotAuthenticated
	}
	return nil
}

// Logout ends the session: best-effort server notification, unconditional
// vault wipe, scheduler cancellation. It always succeeds locally.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.generation++
	hadToken := m.accessToken != ""
	m.stopSchedulerLocked()
	m.mu.Unlock()

	if hadToken {
		if err := m.api.Logout(ctx); err != nil {
			// Expected when the token already expired server-side.
			m.logger.Debug("logout notification failed", "error", err)
		}
	}

	if err := m.vault.Clear(ctx); err != nil {
		m.logger.Warn("clearing vault on logout", "error", err)
	}

	m.mu.Lock()
	m.state = Unauthenticated
	m.user = nil
	m.accessToken = ""
	m.tokenExpiry = time.Time{}
	m.notifyLocked()
	m.mu.Unlock()
}

// UpdateProfile sends a partial profile update and persists the merged
// user snapshot. Requires an authenticated session.
func (m *Manager) UpdateProfile(ctx context.Context, partial map[string]any) (*account.User, error) {
	m.mu.Lock()
	signedIn := m.state.SignedIn()
	m.mu.Unlock()
	if !signedIn {
		return nil, ErrNotAuthenticated
	}

	user, err := m.api.UpdateProfile(ctx, partial)
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	if err := m.vault.StoreUser(ctx, user); err != nil {
		m.logger.Warn("persisting updated profile", "error", err)
	}
	m.mu.Lock()
	m.user = user
	m.notifyLocked()
	m.mu.Unlock()
	return user.Clone(), nil
}

// adoptSession installs a fresh auth result regardless of generation.
func (m *Manager) adoptSession(ctx context.Context, res *client.AuthResult) {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()
	m.adoptSessionGen(ctx, res, gen)
}

// adoptSessionGen installs a fresh auth result unless the session was
// cleared (generation bumped) since gen was observed. Reports whether the
// result was adopted.
func (m *Manager) adoptSessionGen(ctx context.Context, res *client.AuthResult, gen uint64) bool {
	session := vault.Session{
		AccessToken:  res.Token,
		RefreshToken: res.RefreshToken,
		User:         res.User,
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return false
	}
	if err := m.vault.StoreSession(ctx, session); err != nil {
		// Degraded storage: the session lives in memory only.
		m.logger.Warn("session not persisted", "error", err)
	}
	m.user = res.User
	m.accessToken = res.Token
	m.tokenExpiry = tokenExpiry(res.Token)
	m.state = Authenticated
	m.startSchedulerLocked()
	m.notifyLocked()
	m.mu.Unlock()
	return true
}

// adoptStored installs a session restored from the vault without minting
// new tokens.
func (m *Manager) adoptStored(ctx context.Context, stored vault.Session) {
	if err := m.vault.StoreUser(ctx, stored.User); err != nil {
		m.logger.Warn("persisting restored user", "error", err)
	}
	m.mu.Lock()
	m.user = stored.User
	m.accessToken = stored.AccessToken
	m.tokenExpiry = tokenExpiry(stored.AccessToken)
	m.state = Authenticated
	m.startSchedulerLocked()
	m.notifyLocked()
	m.mu.Unlock()
}

// tokenExpiry reads the exp claim from a JWT access token without
// verifying its signature; the server stays authoritative. For opaque
// tokens it falls back to the documented 15-minute lifetime.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(vault.AccessTokenTTL)
}
