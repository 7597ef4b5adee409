package session

import (
	"errors"

	"github.com/tekriderz/sessionkit/account"
)

// State is the session lifecycle state. Transitions:
// Unauthenticated → OtpPending → Authenticated → Refreshing →
// Unauthenticated, with logout or an unrecoverable failure returning any
// state to Unauthenticated.
type State int

const (
	Unauthenticated State = iota
	OtpPending
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case OtpPending:
		return "otp_pending"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	}
	return "unknown"
}

// Authenticated states still hold a usable session; Refreshing is a
// transient sub-state of being signed in.
func (s State) SignedIn() bool {
	return s == Authenticated || s == Refreshing
}

var (
	// ErrNotAuthenticated is returned by operations that require a live
	// session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoRefreshToken is returned when a refresh is requested but no
	// refresh token is held; the session is unrecoverable.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrInvalidOTPSession is returned when OTP verification is attempted
	// with no matching pending registration, including one that expired
	// mid-flow. The user must restart registration.
	ErrInvalidOTPSession = errors.New("no pending registration for this email")
)

// Snapshot is the read-only view of the session handed to UI callers.
type Snapshot struct {
	State State
	User  *account.User
}
