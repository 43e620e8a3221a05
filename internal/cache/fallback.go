package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// FallbackStore reads and writes the primary store and switches to an in-process
// map whenever the primary errors. Values written to the map stay there for the
// life of the process or until the primary accepts a newer write.
type FallbackStore struct {
	primary  Store
	fallback *MemoryStore
}

// NewFallbackStore wraps primary. A nil primary makes the map the only store.
func NewFallbackStore(primary Store, fallback *MemoryStore) *FallbackStore {
	if fallback == nil {
		fallback = NewMemoryStore()
	}
	return &FallbackStore{primary: primary, fallback: fallback}
}

func (f *FallbackStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.primary == nil {
		return f.fallback.Get(ctx, key)
	}
	value, err := f.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrMiss) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logrus.WithField("key", key).WithError(err).Warn("cache store read failed; using in-process map")
	}
	return f.fallback.Get(ctx, key)
}

func (f *FallbackStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.primary == nil {
		return f.fallback.Set(ctx, key, value, ttl)
	}
	if err := f.primary.Set(ctx, key, value, ttl); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logrus.WithField("key", key).WithError(err).Warn("cache store write failed; using in-process map")
		return f.fallback.Set(ctx, key, value, ttl)
	}
	f.fallback.Delete(key)
	return nil
}
