// Package cache implements a TTL-bound cache-aside store for read-mostly
// server responses (dashboard statistics, course lists). Entries past
// their TTL become stale rather than absent: a stale entry is still
// served when the network cannot supply a fresher one, because
// stale-but-present always beats a blank screen.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tekriderz/sessionkit/storage"
)

// DefaultTTL is the freshness window for administrative aggregate views.
const DefaultTTL = 5 * time.Minute

// entryKey is the single key each namespace stores its payload under.
const entryKey = "data"

// ErrNoData is returned when a namespace has no entry at all and a
// blocking fetch also failed.
var ErrNoData = errors.New("no cached data and fetch failed")

// Entry is a cached payload with its freshness metadata. Unlike vault
// records, cache entries carry a soft TTL: expiry makes them stale, not
// invisible.
type Entry struct {
	Payload   json.RawMessage `json:"data"`
	FetchedAt time.Time       `json:"timestamp"`
	TTL       time.Duration   `json:"ttl"`
}

// Fresh reports whether the entry is within its TTL at the given time.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}

// FetchFunc loads a payload from the source of truth.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Store is a cache-aside store over any storage.Store. Namespaces are
// independent; invalidating one never touches another.
type Store struct {
	backing storage.Store
	logger  *slog.Logger
	group   singleflight.Group
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a cache-aside store over the given backing store. An
// in-memory backing store gives tab-session semantics; a bbolt store
// keeps content available across restarts for offline use.
func New(backing storage.Store, opts ...Option) *Store {
	s := &Store{
		backing: backing,
		logger:  slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the namespace's entry, fresh or stale. Absent, corrupt,
// and unavailable all report storage.ErrNotFound.
func (s *Store) Read(ctx context.Context, namespace string) (*Entry, error) {
	raw, err := s.backing.Get(ctx, namespace, entryKey)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return nil, fmt.Errorf("%s: %w", namespace, storage.ErrNotFound)
		}
		return nil, err
	}
	var entry Entry
	if err := raw.Decode(&entry); err != nil {
		s.logger.Warn("discarding corrupt cache entry", "namespace", namespace, "error", err)
		_ = s.backing.Delete(ctx, namespace, entryKey)
		return nil, fmt.Errorf("%s: %w", namespace, storage.ErrNotFound)
	}
	return &entry, nil
}

// Write stores a payload with the given freshness window. A ttl of 0 uses
// DefaultTTL. The storage entry itself carries no expiry; staleness is
// decided at read time so stale entries survive as fallbacks.
func (s *Store) Write(ctx context.Context, namespace string, payload json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entry := Entry{Payload: payload, FetchedAt: s.now(), TTL: ttl}
	raw, err := storage.NewEntry(entryKey, entry, 0)
	if err != nil {
		return err
	}
	if err := s.backing.Put(ctx, namespace, entryKey, raw); err != nil {
		return fmt.Errorf("caching %s: %w", namespace, err)
	}
	return nil
}

// Invalidate removes the namespace's entry, typically after a mutation
// that makes the cached view wrong.
func (s *Store) Invalidate(ctx context.Context, namespace string) error {
	return s.backing.Clear(ctx, namespace)
}

// GetOrFetch applies the cache-aside read policy: a fresh entry is served
// immediately while a silent background revalidation runs; a stale or
// absent entry blocks on the fetch. A failed fetch never clears an
// existing entry; the stale payload is served instead. The returned bool
// reports whether the payload came from cache.
func (s *Store) GetOrFetch(ctx context.Context, namespace string, ttl time.Duration, fetch FetchFunc) (json.RawMessage, bool, error) {
	entry, err := s.Read(ctx, namespace)
	if err == nil && entry.Fresh(s.now()) {
		s.revalidate(namespace, ttl, fetch)
		return entry.Payload, true, nil
	}

	payload, fetchErr := s.fetchAndWrite(ctx, namespace, ttl, fetch)
	if fetchErr == nil {
		return payload, false, nil
	}
	if entry != nil {
		// Stale beats absent.
		s.logger.Warn("fetch failed, serving stale cache", "namespace", namespace, "error", fetchErr)
		return entry.Payload, true, nil
	}
	return nil, false, fmt.Errorf("%s: %w", namespace, errors.Join(ErrNoData, fetchErr))
}

// revalidate refreshes a namespace in the background, collapsing
// concurrent attempts. Failures only log; the existing entry stays.
func (s *Store) revalidate(namespace string, ttl time.Duration, fetch FetchFunc) {
	go func() {
		_, _, _ = s.group.Do(namespace, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := s.fetchAndWrite(ctx, namespace, ttl, fetch); err != nil {
				s.logger.Debug("background revalidation failed", "namespace", namespace, "error", err)
			}
			return nil, nil
		})
	}()
}

func (s *Store) fetchAndWrite(ctx context.Context, namespace string, ttl time.Duration, fetch FetchFunc) (json.RawMessage, error) {
	payload, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Write(ctx, namespace, payload, ttl); err != nil {
		// A cache write failure degrades to uncached operation.
		s.logger.Warn("cache write failed", "namespace", namespace, "error", err)
	}
	return payload, nil
}
