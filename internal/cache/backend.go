// Package cache holds the memoized query results of the read path and the
// secondary indexes that let writes evict them by scope.
package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL bounds how stale a cached list or detail response can get
const DefaultTTL = 5 * time.Minute

// ErrMiss is returned by Backend.Get when the key is absent or expired
var ErrMiss = errors.New("cache: miss")

// Backend is the storage substrate shared by the result cache, the index
// registry and the ephemeral impression counters. A ttl of 0 means no expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// SAdd adds a member to the set at key and refreshes the set's ttl in one atomic step
	SAdd(ctx context.Context, key, member string, ttl time.Duration) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) error

	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	// TakeInt returns the counter at key and resets it, without losing increments
	// that race with the read. Absent keys yield 0.
	TakeInt(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Observer receives cache events; services.Metrics implements it
type Observer interface {
	CacheHit(namespace string)
	CacheMiss(namespace string)
	CacheError(op string)
	ScopeInvalidated(kind string, keys int)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)              {}
func (nopObserver) CacheMiss(string)             {}
func (nopObserver) CacheError(string)            {}
func (nopObserver) ScopeInvalidated(string, int) {}
