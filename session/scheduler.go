package session

import (
	"context"
	"errors"
	"time"

	"github.com/tekriderz/sessionkit/client"
)

// scheduler is the background task that keeps an authenticated session
// alive: it renews the access token ahead of expiry and periodically
// re-validates the session against the server to catch revocation. It is
// started on entry to Authenticated and cancelled on any exit transition.
type scheduler struct {
	stop chan struct{}
	done chan struct{}
}

// startSchedulerLocked starts the background task if it is not already
// running. Caller holds m.mu.
func (m *Manager) startSchedulerLocked() {
	if m.sched != nil {
		return
	}
	s := &scheduler{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	m.sched = s

	// Refresh ahead of the token's actual expiry when it is nearer than
	// the regular tick, leaving the configured margin.
	first := m.refreshInterval
	if !m.tokenExpiry.IsZero() {
		if until := time.Until(m.tokenExpiry) - m.refreshMargin; until < first {
			first = max(until, time.Second)
		}
	}

	go m.runScheduler(s, first)
}

// stopSchedulerLocked cancels the background task. Caller holds m.mu. The
// task may be mid-refresh; its eventual result is discarded by the
// generation check in adoptSessionGen.
func (m *Manager) stopSchedulerLocked() {
	if m.sched == nil {
		return
	}
	close(m.sched.stop)
	m.sched = nil
}

func (m *Manager) runScheduler(s *scheduler, firstRefresh time.Duration) {
	defer close(s.done)

	refresh := time.NewTimer(firstRefresh)
	defer refresh.Stop()
	validate := time.NewTicker(m.validateInterval)
	defer validate.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-refresh.C:
			if err := m.Refresh(context.Background()); err != nil {
				// A rejected refresh already ended the session; anything
				// else is logged and retried on the next tick.
				m.logger.Info("scheduled refresh failed", "error", err)
			}
			refresh.Reset(m.refreshInterval)
		case <-validate.C:
			m.validateSession(context.Background())
		}
	}
}

// validateSession re-fetches the profile to detect server-side
// revocation (for example a suspended account) and forces logout when the
// server rejects the session. Network unavailability is not revocation
// and only logs.
func (m *Manager) validateSession(ctx context.Context) {
	user, err := m.api.Me(ctx)
	if err != nil {
		if errors.Is(err, client.ErrNetworkUnavailable) {
			m.logger.Debug("session validation skipped: offline")
			return
		}
		m.logger.Info("session no longer valid on server, ending it", "error", err)
		m.Logout(ctx)
		return
	}

	if err := m.vault.StoreUser(ctx, user); err != nil {
		m.logger.Warn("persisting validated user", "error", err)
	}
	m.mu.Lock()
	if m.state.SignedIn() {
		m.user = user
		m.notifyLocked()
	}
	m.mu.Unlock()
}
