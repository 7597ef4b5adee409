// Package storage provides the namespaced key-value storage abstraction
// underlying the credential vault and the content cache.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no entry exists for the requested key,
	// including when an entry existed but has passed its expiry.
	ErrNotFound = errors.New("entry not found")
	// ErrUnavailable is returned when the backing mechanism cannot be
	// reached. Callers treat it the same as an absent entry.
	ErrUnavailable = errors.New("storage unavailable")
)

// Entry is the envelope wrapping every stored value. Values are written and
// read as whole envelopes, never field-by-field, so concurrent writers can
// not interleave partial records.
type Entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	WrittenAt time.Time       `json:"written_at"`
	ExpiresAt time.Time       `json:"expires_at,omitzero"`
}

// NewEntry marshals value into an Entry. A ttl of 0 means the entry never
// expires and is removed only by an explicit Delete or Clear.
func NewEntry(key string, value any, ttl time.Duration) (*Entry, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding entry %q: %w", key, err)
	}
	e := &Entry{
		Key:       key,
		Value:     raw,
		WrittenAt: time.Now(),
	}
	if ttl > 0 {
		e.ExpiresAt = e.WrittenAt.Add(ttl)
	}
	return e, nil
}

// Expired reports whether the entry's expiry has passed at the given time.
// Entries without an expiry never expire.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Decode unmarshals the entry's value into v.
func (e *Entry) Decode(v any) error {
	if err := json.Unmarshal(e.Value, v); err != nil {
		return fmt.Errorf("decoding entry %q: %w", e.Key, err)
	}
	return nil
}

// Store is a namespaced, persistent key-value store. Implementations must
// enforce lazy eviction: a Get that finds an expired entry deletes it and
// returns ErrNotFound, so expired secrets never reach callers. All methods
// must tolerate missing or corrupt data by reporting ErrNotFound rather
// than failing loudly.
type Store interface {
	Put(ctx context.Context, namespace, key string, entry *Entry) error
	Get(ctx context.Context, namespace, key string) (*Entry, error)
	Delete(ctx context.Context, namespace, key string) error
	Clear(ctx context.Context, namespace string) error
	List(ctx context.Context, namespace string) ([]string, error)
}
