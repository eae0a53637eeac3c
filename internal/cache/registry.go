package cache

import (
	"context"
	"fmt"
	"time"

	"inkwell/internal/cachekey"
)

// Registry maps invalidation scopes to the Result Cache keys that depend on them
type Registry struct {
	backend  Backend
	results  *ResultCache
	ttl      time.Duration
	observer Observer
}

// NewRegistry creates a registry whose evictions go through results.
// Its TTL must be at least the TTL of the entries it tracks.
func NewRegistry(backend Backend, results *ResultCache, opts ...Option) *Registry {
	o := buildOptions(opts)
	ttl := o.ttl
	if results != nil && results.TTL() > ttl {
		ttl = results.TTL()
	}
	return &Registry{
		backend:  backend,
		results:  results,
		ttl:      ttl,
		observer: o.observer,
	}
}

// Register records that key depends on scope. Adding the same key twice
// leaves one member; every call refreshes the index TTL.
func (r *Registry) Register(ctx context.Context, scope cachekey.Scope, key string) error {
	if err := r.backend.SAdd(ctx, scope.IndexKey(), key, r.ttl); err != nil {
		r.observer.CacheError("register")
		return fmt.Errorf("failed to register %s under %s: %w", key, scope, err)
	}
	return nil
}

// Keys lists the cache keys currently registered under scope
func (r *Registry) Keys(ctx context.Context, scope cachekey.Scope) ([]string, error) {
	return r.backend.SMembers(ctx, scope.IndexKey())
}

// Invalidate evicts every key registered under scope and then drops the index
// itself. Member entries go first so a registration racing with us finds a
// smaller, still accurate index. Unknown scopes are a no-op.
func (r *Registry) Invalidate(ctx context.Context, scope cachekey.Scope) (int, error) {
	keys, err := r.backend.SMembers(ctx, scope.IndexKey())
	if err != nil {
		r.observer.CacheError("invalidate")
		return 0, fmt.Errorf("failed to read index %s: %w", scope.IndexKey(), err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := r.results.Delete(ctx, keys...); err != nil {
		// Keep the index so a retry can still find the entries
		return 0, fmt.Errorf("failed to evict %d keys of %s: %w", len(keys), scope, err)
	}

	if err := r.backend.Delete(ctx, scope.IndexKey()); err != nil {
		r.observer.CacheError("invalidate")
		return len(keys), fmt.Errorf("failed to drop index %s: %w", scope.IndexKey(), err)
	}

	r.observer.ScopeInvalidated(string(scope.Kind), len(keys))
	return len(keys), nil
}
