// Package cache keeps per-document, per-language result bundles and produces
// translated variants on demand.
package cache

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrMiss reports that no live value exists for a key. It is control flow, not a failure.
var ErrMiss = errors.New("cache miss")

// Store is the byte-level key/value backend behind the translation cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type memoryItem struct {
	value   []byte
	expires time.Time
}

// MemoryStore is an in-process map with per-key expiry. It lives for one process.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

// Get returns a copy of the stored value.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if !item.expires.IsZero() && !m.now().Before(item.expires) {
		m.mu.Lock()
		if current, ok := m.items[key]; ok && current.expires.Equal(item.expires) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, ErrMiss
	}
	return append([]byte(nil), item.value...), nil
}

// Set replaces the value under key. A non-positive ttl never expires.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = item
	m.mu.Unlock()
	return nil
}

// Delete drops a key if present.
func (m *MemoryStore) Delete(key string) {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}

// Len returns the number of stored keys, expired ones included until they are read.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// jitterTTL spreads expiry by +/- 10% so bundles written together do not expire together.
func jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	jitter := float64(ttl) * 0.1 * (rand.Float64()*2 - 1)
	return ttl + time.Duration(jitter)
}
