package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/tekriderz/sessionkit/client"
	"github.com/tekriderz/sessionkit/vault"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSchedulerRefreshesPeriodically(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	m, _ := newTestManager(t, api, WithIntervals(40*time.Millisecond, time.Hour))

	_, err := m.Login(ctx, "a@x.com", "pw", "")
	require.NoError(t, err)

	waitFor(t, func() bool { return api.refreshCalls.Load() >= 2 }, "scheduler never refreshed")
	require.Equal(t, Authenticated, m.Snapshot().State)
}

func TestSchedulerRevalidatesPeriodically(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	m, _ := newTestManager(t, api, WithIntervals(time.Hour, 40*time.Millisecond))

	_, err := m.Login(ctx, "a@x.com", "pw", "")
	require.NoError(t, err)

	waitFor(t, func() bool { return api.meCalls.Load() >= 2 }, "scheduler never revalidated")
}

func TestSchedulerLogsOutOnRevocation(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	m, _ := newTestManager(t, api, WithIntervals(time.Hour, 40*time.Millisecond))

	_, err := m.Login(ctx, "a@x.com", "pw", "")
	require.NoError(t, err)

	api.setMeErr(client.ErrUnauthorized)

	waitFor(t, func() bool { return m.Snapshot().State == Unauthenticated }, "revocation never ended the session")
}

func TestSchedulerToleratesOfflineRevalidation(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.meErr = client.ErrNetworkUnavailable
	m, _ := newTestManager(t, api, WithIntervals(time.Hour, 30*time.Millisecond))

	_, err := m.Login(ctx, "a@x.com", "pw", "")
	require.NoError(t, err)

	waitFor(t, func() bool { return api.meCalls.Load() >= 2 }, "scheduler never revalidated")
	require.Equal(t, Authenticated, m.Snapshot().State)
}

func TestSchedulerStopsOnLogout(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	m, _ := newTestManager(t, api, WithIntervals(30*time.Millisecond, 30*time.Millisecond))

	_, err := m.Login(ctx, "a@x.com", "pw", "")
	require.NoError(t, err)
	waitFor(t, func() bool { return api.refreshCalls.Load() >= 1 }, "scheduler never ran")

	m.Logout(ctx)
	settled := api.refreshCalls.Load() + api.meCalls.Load()
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, settled, api.refreshCalls.Load()+api.meCalls.Load())
}

func TestTokenExpiryFromJWT(t *testing.T) {
	exp := time.Now().Add(42 * time.Minute).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)

	require.Equal(t, exp.Unix(), tokenExpiry(signed).Unix())
}

func TestTokenExpiryOpaqueFallback(t *testing.T) {
	got := tokenExpiry("not-a-jwt")
	expected := time.Now().Add(vault.AccessTokenTTL)
	require.WithinDuration(t, expected, got, time.Minute)
}
