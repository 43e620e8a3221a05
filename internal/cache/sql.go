package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"lexplain/backend/internal/store"
)

// SQLStore keeps values in the service database so bundles survive restarts
// when no Redis is configured.
type SQLStore struct {
	db *store.Database
}

// NewSQLStore wraps db.
func NewSQLStore(db *store.Database) *SQLStore {
	return &SQLStore{db: db}
}

// Get maps store.ErrNotFound (missing or expired) onto ErrMiss.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := s.db.GetCacheEntry(key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return entry.Payload, nil
}

// Set replaces the row for key.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := &store.CacheEntry{Key: key, Payload: value}
	entry.DocumentID, entry.Language = splitBundleKey(key)
	if ttl > 0 {
		expires := time.Now().Add(ttl)
		entry.ExpiresAt = &expires
	}
	return s.db.UpsertCacheEntry(entry)
}

// RunJanitor purges expired rows every interval until ctx is done.
func (s *SQLStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.db.PurgeExpiredCache(now)
			if err != nil {
				logrus.WithError(err).Warn("purge expired cache rows")
				continue
			}
			if n > 0 {
				logrus.WithField("rows", n).Debug("purged expired cache rows")
			}
		}
	}
}

func splitBundleKey(key string) (docID, language string) {
	rest, ok := strings.CutPrefix(key, bundleKeyPrefix)
	if !ok {
		return "", ""
	}
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 {
		return "", ""
	}
	return rest[:idx], rest[idx+1:]
}
