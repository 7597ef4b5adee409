package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	e, err := NewEntry("k", map[string]string{"a": "b"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, "k", e.Key)
	require.False(t, e.WrittenAt.IsZero())
	require.Equal(t, e.WrittenAt.Add(time.Minute), e.ExpiresAt)

	var v map[string]string
	require.NoError(t, e.Decode(&v))
	require.Equal(t, "b", v["a"])
}

func TestNewEntryNoTTL(t *testing.T) {
	e, err := NewEntry("k", 42, 0)
	require.NoError(t, err)
	require.True(t, e.ExpiresAt.IsZero())
	require.False(t, e.Expired(time.Now().Add(100*365*24*time.Hour)))
}

func TestNewEntryUnencodable(t *testing.T) {
	_, err := NewEntry("k", make(chan int), 0)
	require.Error(t, err)
}

func TestEntryExpired(t *testing.T) {
	now := time.Now()
	e := &Entry{Key: "k", WrittenAt: now, ExpiresAt: now.Add(time.Minute)}
	require.False(t, e.Expired(now))
	require.False(t, e.Expired(now.Add(59*time.Second)))
	require.True(t, e.Expired(now.Add(time.Minute)))
	require.True(t, e.Expired(now.Add(time.Hour)))
}

func TestEntryDecodeCorrupt(t *testing.T) {
	e := &Entry{Key: "k", Value: []byte("{not json")}
	var v map[string]any
	require.Error(t, e.Decode(&v))
}
