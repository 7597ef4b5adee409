// Package devserver is an in-memory auth backend for local development
// and integration tests. It speaks the same wire protocol as the real
// platform: JSON bodies, bearer tokens, and an {"error":{...}} envelope
// with machine-readable types.
package devserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tekriderz/sessionkit/account"
	"github.com/tekriderz/sessionkit/internal/util"
)

const (
	accessTokenTTL = 15 * time.Minute
	otpLength      = 6
)

type userRecord struct {
	user     account.User
	password string
}

type pendingSignup struct {
	reg       account.TempRegistration
	otp       string
	expiresAt time.Time
}

// Server holds all state in memory. Restarting it forgets every user,
// which is exactly right for a dev backend.
type Server struct {
	mu       sync.Mutex
	users    map[string]*userRecord    // keyed by lowercased email
	pending  map[string]*pendingSignup // keyed by lowercased email
	refresh  map[string]string         // refresh token -> email
	sessions map[string]string         // access token -> email

	signKey []byte
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a dev server with a random signing key.
func New(opts ...Option) (*Server, error) {
	key, err := util.RandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	s := &Server{
		users:    make(map[string]*userRecord),
		pending:  make(map[string]*pendingSignup),
		refresh:  make(map[string]string),
		sessions: make(map[string]string),
		signKey:  key,
		logger:   slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Router returns a chi.Router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/verify-otp", s.handleVerifyOTP)
	r.Post("/auth/resend-otp", s.handleResendOTP)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/auth/me", s.handleMe)
		r.Post("/auth/logout", s.handleLogout)
		r.Put("/users/profile", s.handleUpdateProfile)
		r.Get("/courses", s.handleCourses)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// Seed registers a verified user directly, bypassing the OTP flow.
// Intended for tests and dev bootstrap.
func (s *Server) Seed(name, email, password string, role account.Role) account.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := account.User{
		ID:       uuid.NewString(),
		Name:     name,
		Email:    email,
		Role:     role,
		Verified: true,
	}
	s.users[strings.ToLower(email)] = &userRecord{user: u, password: password}
	return u
}

// PendingOTP returns the current one-time code for a pending signup.
// Tests use this instead of an email inbox.
func (s *Server) PendingOTP(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[strings.ToLower(email)]; ok {
		return p.otp
	}
	return ""
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	role := account.Role(req.Role)
	if req.Email == "" || req.Password == "" || !role.Valid() {
		writeError(w, http.StatusBadRequest, "validation_error", "name, email, password and a valid role are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(req.Email)
	if _, taken := s.users[key]; taken {
		writeError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
		return
	}
	otp, err := util.RandomDigits(otpLength)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to issue verification code")
		return
	}
	s.pending[key] = &pendingSignup{
		reg: account.TempRegistration{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Role:     role,
		},
		otp:       otp,
		expiresAt: s.now().Add(15 * time.Minute),
	}
	s.logger.Info("otp issued", "email", key, "otp", otp)
	writeJSON(w, http.StatusOK, map[string]any{"otpSent": true})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(req.Email)
	p, ok := s.pending[key]
	if !ok || s.now().After(p.expiresAt) {
		writeError(w, http.StatusBadRequest, "otp_expired", "no pending signup for this email")
		return
	}
	if p.otp != req.OTP {
		writeError(w, http.StatusBadRequest, "invalid_otp", "the code does not match")
		return
	}
	delete(s.pending, key)
	u := account.User{
		ID:       uuid.NewString(),
		Name:     p.reg.Name,
		Email:    p.reg.Email,
		Role:     p.reg.Role,
		Verified: true,
	}
	s.users[key] = &userRecord{user: u, password: p.reg.Password}
	s.writeAuthResultLocked(w, key, u)
}

func (s *Server) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(req.Email)
	p, ok := s.pending[key]
	if !ok {
		writeError(w, http.StatusBadRequest, "otp_expired", "no pending signup for this email")
		return
	}
	otp, err := util.RandomDigits(otpLength)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to issue verification code")
		return
	}
	p.otp = otp
	p.expiresAt = s.now().Add(15 * time.Minute)
	s.logger.Info("otp reissued", "email", key, "otp", p.otp)
	writeJSON(w, http.StatusOK, map[string]any{"message": "verification code sent"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(req.Email)
	rec, ok := s.users[key]
	if !ok || rec.password != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
		return
	}
	s.writeAuthResultLocked(w, key, rec.user)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.refresh[req.RefreshToken]
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "refresh token is not valid")
		return
	}
	rec, ok := s.users[email]
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "refresh token is not valid")
		return
	}
	// Rotation: a used refresh token is dead.
	delete(s.refresh, req.RefreshToken)
	s.writeAuthResultLocked(w, email, rec.user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if !decodeBody(w, r, &partial) {
		return
	}
	u := userFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[strings.ToLower(u.Email)]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "account no longer exists")
		return
	}
	if name, ok := partial["name"].(string); ok && name != "" {
		rec.user.Name = name
	}
	if err := mergeProfile(&rec.user, partial); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": rec.user})
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sampleCourses)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"role":         u.Role,
		"totalCourses": len(sampleCourses.Courses),
		"generatedAt":  s.now().UTC().Format(time.RFC3339),
	})
}

// writeAuthResultLocked mints a fresh token pair and responds with the
// standard auth payload. Caller holds s.mu.
func (s *Server) writeAuthResultLocked(w http.ResponseWriter, email string, u account.User) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"role":  string(u.Role),
		"iat":   now.Unix(),
		"exp":   now.Add(accessTokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to mint token")
		return
	}
	refreshToken := uuid.NewString()
	s.sessions[token] = email
	s.refresh[refreshToken] = email
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        token,
		"refreshToken": refreshToken,
		"user":         u,
	})
}
