package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tekriderz/sessionkit/account"
	"github.com/tekriderz/sessionkit/storage"
)

// Session bundles the records that make up an authenticated identity.
// A loaded session always carries a user; the access token may have aged
// out of storage by the time it is read back.
type Session struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *account.User `json:"user"`
}

// StoreAccessToken writes the access token with its 15-minute lifetime.
func (v *Vault) StoreAccessToken(ctx context.Context, token string) error {
	return v.put(ctx, keyAccessToken, token, AccessTokenTTL)
}

// LoadAccessToken returns the stored access token, or storage.ErrNotFound
// if absent or expired.
func (v *Vault) LoadAccessToken(ctx context.Context) (string, error) {
	var token string
	if err := v.get(ctx, keyAccessToken, &token); err != nil {
		return "", err
	}
	return token, nil
}

// StoreRefreshToken writes the refresh token with its 7-day lifetime.
func (v *Vault) StoreRefreshToken(ctx context.Context, token string) error {
	return v.put(ctx, keyRefreshToken, token, RefreshTokenTTL)
}

// LoadRefreshToken returns the stored refresh token, or storage.ErrNotFound
// if absent or expired.
func (v *Vault) LoadRefreshToken(ctx context.Context) (string, error) {
	var token string
	if err := v.get(ctx, keyRefreshToken, &token); err != nil {
		return "", err
	}
	return token, nil
}

// StoreUser writes the user snapshot. It has no expiry and is removed only
// by Clear.
func (v *Vault) StoreUser(ctx context.Context, user *account.User) error {
	return v.put(ctx, keyUser, user, 0)
}

// LoadUser returns the stored user snapshot.
func (v *Vault) LoadUser(ctx context.Context) (*account.User, error) {
	var user account.User
	if err := v.get(ctx, keyUser, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// StoreSession writes the access token, refresh token, and user under the
// vault lock, so a concurrent reader never observes a half-written
// session.
func (v *Vault) StoreSession(ctx context.Context, session Session) error {
	if session.AccessToken == "" || session.User == nil {
		return fmt.Errorf("session requires both access token and user")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.put(ctx, keyAccessToken, session.AccessToken, AccessTokenTTL); err != nil {
		return err
	}
	if err := v.put(ctx, keyRefreshToken, session.RefreshToken, RefreshTokenTTL); err != nil {
		return err
	}
	return v.put(ctx, keyUser, session.User, 0)
}

// LoadSession returns the stored session. The user record anchors it: a
// user whose access token has aged out is still a session, because the
// refresh token can mint a new token. A token without a user is a torn
// write and is discarded.
func (v *Vault) LoadSession(ctx context.Context) (Session, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	user, err := v.LoadUser(ctx)
	if err != nil {
		if _, tokenErr := v.LoadAccessToken(ctx); tokenErr == nil {
			v.logger.Warn("discarding orphaned access token")
			_ = v.store.Delete(ctx, Namespace, keyAccessToken)
		}
		return Session{}, fmt.Errorf("session: %w", storage.ErrNotFound)
	}

	session := Session{User: user}
	if token, err := v.LoadAccessToken(ctx); err == nil {
		session.AccessToken = token
	}
	if refresh, err := v.LoadRefreshToken(ctx); err == nil {
		session.RefreshToken = refresh
	}
	return session, nil
}

// StoreTempRegistration holds registration input while an OTP challenge is
// outstanding. Only one is kept at a time; a new signup replaces it.
func (v *Vault) StoreTempRegistration(ctx context.Context, reg *account.TempRegistration) error {
	return v.put(ctx, keyTempRegistration, reg, TempRegistrationTTL)
}

// LoadTempRegistration returns the pending registration, or
// storage.ErrNotFound once its 15-minute window has elapsed.
func (v *Vault) LoadTempRegistration(ctx context.Context) (*account.TempRegistration, error) {
	var reg account.TempRegistration
	if err := v.get(ctx, keyTempRegistration, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// DeleteTempRegistration removes the pending registration, called after a
// successful OTP verification.
func (v *Vault) DeleteTempRegistration(ctx context.Context) error {
	return v.store.Delete(ctx, Namespace, keyTempRegistration)
}

// DeviceID returns this installation's stable identifier, generating and
// persisting one on first call.
func (v *Vault) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := v.get(ctx, keyDeviceID, &id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	id = uuid.NewString()
	if err := v.put(ctx, keyDeviceID, id, 0); err != nil {
		return "", err
	}
	return id, nil
}
