package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryBackend is an in-process Backend on go-cache.
// Used when REDIS_URL is not configured and in tests.
type MemoryBackend struct {
	store *gocache.Cache
	setMu sync.Mutex // serializes set read-modify-write
}

type memberSet map[string]struct{}

// NewMemoryBackend creates an in-process backend. Expired items are
// never returned and are swept every cleanupInterval.
func NewMemoryBackend(cleanupInterval time.Duration) *MemoryBackend {
	return &MemoryBackend{
		store: gocache.New(DefaultTTL, cleanupInterval),
	}
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	v, found := m.store.Get(key)
	if !found {
		return nil, ErrMiss
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, ErrMiss
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b := make([]byte, len(value))
	copy(b, value)
	m.store.Set(key, b, expiration(ttl))
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	m.setMu.Lock()
	defer m.setMu.Unlock()
	for _, k := range keys {
		m.store.Delete(k)
	}
	return nil
}

func (m *MemoryBackend) SAdd(_ context.Context, key, member string, ttl time.Duration) error {
	m.setMu.Lock()
	defer m.setMu.Unlock()

	next := memberSet{member: {}}
	if v, found := m.store.Get(key); found {
		if existing, ok := v.(memberSet); ok {
			for k := range existing {
				next[k] = struct{}{}
			}
		}
	}
	m.store.Set(key, next, expiration(ttl))
	return nil
}

func (m *MemoryBackend) SMembers(_ context.Context, key string) ([]string, error) {
	m.setMu.Lock()
	defer m.setMu.Unlock()

	v, found := m.store.Get(key)
	if !found {
		return nil, nil
	}
	set, ok := v.(memberSet)
	if !ok {
		return nil, nil
	}
	members := make([]string, 0, len(set))
	for k := range set {
		members = append(members, k)
	}
	return members, nil
}

func (m *MemoryBackend) SRem(_ context.Context, key string, members ...string) error {
	m.setMu.Lock()
	defer m.setMu.Unlock()

	v, expiresAt, found := m.store.GetWithExpiration(key)
	if !found {
		return nil
	}
	set, ok := v.(memberSet)
	if !ok {
		return nil
	}
	next := make(memberSet, len(set))
	for k := range set {
		next[k] = struct{}{}
	}
	for _, k := range members {
		delete(next, k)
	}

	ttl := gocache.NoExpiration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			m.store.Delete(key)
			return nil
		}
	}
	m.store.Set(key, next, ttl)
	return nil
}

func (m *MemoryBackend) IncrBy(_ context.Context, key string, n int64) (int64, error) {
	// Add fails when the key exists, which is what we want
	_ = m.store.Add(key, int64(0), gocache.NoExpiration)
	return m.store.IncrementInt64(key, n)
}

func (m *MemoryBackend) TakeInt(_ context.Context, key string) (int64, error) {
	v, found := m.store.Get(key)
	if !found {
		return 0, nil
	}
	n, ok := v.(int64)
	if !ok || n == 0 {
		return 0, nil
	}
	// Subtract what we read instead of deleting, so concurrent bumps survive
	if _, err := m.store.DecrementInt64(key, n); err != nil {
		return 0, err
	}
	return n, nil
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }

func (m *MemoryBackend) Close() error {
	m.store.Flush()
	return nil
}
