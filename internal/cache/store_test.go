package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexplain/backend/internal/store"
)

type brokenStore struct{ err error }

func (b brokenStore) Get(context.Context, string) ([]byte, error) { return nil, b.err }

func (b brokenStore) Set(context.Context, string, []byte, time.Duration) error { return b.err }

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	value := []byte("v1")
	require.NoError(t, m.Set(ctx, "k", value, time.Minute))
	value[0] = 'x'
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, m.Set(ctx, "forever", []byte("v"), 0))
	now = now.Add(time.Hour)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = m.Get(ctx, "forever")
	assert.NoError(t, err)
	assert.Equal(t, 1, m.Len())
}

func TestFallbackStoreUsesMapWhenPrimaryFails(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	f := NewFallbackStore(brokenStore{err: errors.New("connection refused")}, mem)

	require.NoError(t, f.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := f.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	_, err = f.Get(ctx, "other")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestFallbackStorePrefersPrimary(t *testing.T) {
	ctx := context.Background()
	primary, mem := NewMemoryStore(), NewMemoryStore()
	require.NoError(t, mem.Set(ctx, "k", []byte("stale"), 0))

	f := NewFallbackStore(primary, mem)
	require.NoError(t, f.Set(ctx, "k", []byte("fresh"), 0))

	got, err := f.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), got)
	assert.Equal(t, 0, mem.Len())
}

func TestFallbackStoreWithUnreachableRedis(t *testing.T) {
	client := NewRedisClient(RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	redisStore := NewRedisStore(client, "")

	ctx := context.Background()
	_, err := redisStore.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)

	f := NewFallbackStore(redisStore, nil)
	require.NoError(t, f.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := f.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestSQLStore(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	s := NewSQLStore(db)
	_, err = s.Get(ctx, BundleKey("doc-1", "es"))
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Set(ctx, BundleKey("doc-1", "es"), []byte(`{"a":1}`), time.Hour))
	got, err := s.Get(ctx, BundleKey("doc-1", "es"))
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), got)

	entry, err := db.GetCacheEntry(BundleKey("doc-1", "es"))
	require.NoError(t, err)
	assert.Equal(t, "doc-1", entry.DocumentID)
	assert.Equal(t, "es", entry.Language)
}

func TestSplitBundleKey(t *testing.T) {
	tests := []struct {
		key, doc, language string
	}{
		{BundleKey("abc", "fr"), "abc", "fr"},
		{BundleKey("a:b", "de"), "a:b", "de"},
		{"source:abc", "", ""},
		{"bundle:", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			doc, language := splitBundleKey(tc.key)
			assert.Equal(t, tc.doc, doc)
			assert.Equal(t, tc.language, language)
		})
	}
}
