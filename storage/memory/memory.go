// Package memory provides a thread-safe in-memory implementation of
// storage.Store. It backs the short-lived content cache and serves as the
// degraded-mode fallback when no durable store can be opened.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tekriderz/sessionkit/storage"
)

// Store is a thread-safe in-memory implementation of storage.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string]*storage.Entry
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{data: make(map[string]map[string]*storage.Entry)}
}

func cloneEntry(e *storage.Entry) *storage.Entry {
	if e == nil {
		return nil
	}
	return &storage.Entry{
		Key:       e.Key,
		Value:     append([]byte(nil), e.Value...),
		WrittenAt: e.WrittenAt,
		ExpiresAt: e.ExpiresAt,
	}
}

func (s *Store) Put(ctx context.Context, namespace, key string, entry *storage.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[namespace]; !ok {
		s.data[namespace] = make(map[string]*storage.Entry)
	}
	s.data[namespace][key] = cloneEntry(entry)
	return nil
}

func (s *Store) Get(ctx context.Context, namespace, key string) (*storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		return nil, fmt.Errorf("%s: %w", namespace, storage.ErrNotFound)
	}
	entry, ok := ns[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", namespace, key, storage.ErrNotFound)
	}
	if entry.Expired(time.Now()) {
		delete(ns, key)
		return nil, fmt.Errorf("%s/%s: %w", namespace, key, storage.ErrNotFound)
	}
	return cloneEntry(entry), nil
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.data[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, namespace string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, namespace)
	return nil
}

func (s *Store) List(ctx context.Context, namespace string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data[namespace] {
		keys = append(keys, k)
	}
	return keys, nil
}
