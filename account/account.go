// Package account defines the identity types shared by the vault, the API
// client, and the session manager.
package account

import "encoding/json"

// Role is the platform role attached to an authenticated user.
type Role string

const (
	RoleLearner Role = "learner"
	RoleTutor   Role = "tutor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one of the known platform roles.
func (r Role) Valid() bool {
	switch r {
	case RoleLearner, RoleTutor, RoleAdmin:
		return true
	}
	return false
}

// User is the authenticated identity snapshot held by the client.
// Profile is an opaque blob owned by the backend.
type User struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Role     Role            `json:"role"`
	Verified bool            `json:"verified"`
	Profile  json.RawMessage `json:"profile,omitempty"`
}

// Clone returns an independent copy of the user so that callers holding a
// snapshot cannot mutate shared state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Profile = append(json.RawMessage(nil), u.Profile...)
	return &cp
}

// TempRegistration holds registration input while an OTP challenge is
// outstanding. It is equivalent to password-bearing data and must never
// outlive the verification window.
type TempRegistration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}
