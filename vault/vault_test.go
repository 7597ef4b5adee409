package vault

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tekriderz/sessionkit/account"
	"github.com/tekriderz/sessionkit/storage"
	"github.com/tekriderz/sessionkit/storage/memory"
)

func newTestVault(t *testing.T) (*Vault, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	v, err := Open(context.Background(), store, "correct horse battery staple")
	require.NoError(t, err)
	return v, store
}

func testUser() *account.User {
	return &account.User{
		ID:       "u-1",
		Name:     "Ada",
		Email:    "ada@example.com",
		Role:     account.RoleLearner,
		Verified: true,
		Profile:  json.RawMessage(`{"bio":"hi"}`),
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	_, err := Open(ctx, store, "first passphrase")
	require.NoError(t, err)

	_, err = Open(ctx, store, "second passphrase")
	require.ErrorIs(t, err, ErrLocked)
}

func TestOpenSamePassphraseReadsBack(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	v1, err := Open(ctx, store, "pw")
	require.NoError(t, err)
	require.NoError(t, v1.StoreUser(ctx, testUser()))

	// A second vault over the same store and passphrase must decrypt what
	// the first one wrote.
	v2, err := Open(ctx, store, "pw")
	require.NoError(t, err)
	user, err := v2.LoadUser(ctx)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", user.Email)
}

func TestTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	require.NoError(t, v.StoreAccessToken(ctx, "tok-123"))
	tok, err := v.LoadAccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok-123", tok)

	require.NoError(t, v.StoreRefreshToken(ctx, "ref-456"))
	ref, err := v.LoadRefreshToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "ref-456", ref)
}

func TestRecordsEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	v, store := newTestVault(t)

	require.NoError(t, v.StoreAccessToken(ctx, "super-secret-token"))

	entry, err := store.Get(ctx, Namespace, "secure_auth_token")
	require.NoError(t, err)
	require.NotContains(t, string(entry.Value), "super-secret-token")
}

func TestExpiredTokenNeverReturned(t *testing.T) {
	ctx := context.Background()
	v, store := newTestVault(t)

	require.NoError(t, v.StoreAccessToken(ctx, "tok"))

	// Backdate the entry past its TTL.
	entry, err := store.Get(ctx, Namespace, "secure_auth_token")
	require.NoError(t, err)
	entry.ExpiresAt = time.Now().Add(-time.Second)
	require.NoError(t, store.Put(ctx, Namespace, "secure_auth_token", entry))

	_, err = v.LoadAccessToken(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Lazy eviction removed the key entirely.
	keys, err := store.List(ctx, Namespace)
	require.NoError(t, err)
	require.NotContains(t, keys, "secure_auth_token")
}

func TestCorruptRecordDiscarded(t *testing.T) {
	ctx := context.Background()
	v, store := newTestVault(t)

	entry, err := storage.NewEntry("secure_user_data", sealedRecord{Ver: 1, Scheme: "aes256gcm", Data: []byte("garbage")}, 0)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, Namespace, "secure_user_data", entry))

	_, err = v.LoadUser(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)

	keys, err := store.List(ctx, Namespace)
	require.NoError(t, err)
	require.NotContains(t, keys, "secure_user_data")
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	require.NoError(t, v.StoreSession(ctx, Session{
		AccessToken:  "tok",
		RefreshToken: "ref",
		User:         testUser(),
	}))
	require.NoError(t, v.Clear(ctx))

	_, err := v.LoadAccessToken(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = v.LoadRefreshToken(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = v.LoadUser(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClearKeepsRecordsReadableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	v1, err := Open(ctx, store, "pw")
	require.NoError(t, err)
	require.NoError(t, v1.Clear(ctx))
	require.NoError(t, v1.StoreUser(ctx, testUser()))

	// Records written after a Clear must still decrypt with the same
	// passphrase after reopening.
	v2, err := Open(ctx, store, "pw")
	require.NoError(t, err)
	user, err := v2.LoadUser(ctx)
	require.NoError(t, err)
	require.Equal(t, "u-1", user.ID)
}
