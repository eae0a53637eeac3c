package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"
)

// ResultCache memoizes query results as JSON under derived keys.
// It is best-effort: backend failures are logged and read as misses.
type ResultCache struct {
	backend  Backend
	ttl      time.Duration
	observer Observer
}

// Option configures a ResultCache or Registry
type Option func(*options)

type options struct {
	ttl      time.Duration
	observer Observer
}

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithObserver attaches a metrics observer
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{ttl: DefaultTTL, observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewResultCache creates a result cache over backend
func NewResultCache(backend Backend, opts ...Option) *ResultCache {
	o := buildOptions(opts)
	return &ResultCache{
		backend:  backend,
		ttl:      o.ttl,
		observer: o.observer,
	}
}

// TTL returns the expiry applied when Set is called with ttl 0
func (c *ResultCache) TTL() time.Duration {
	return c.ttl
}

// Get decodes the entry at key into dst. It reports false on miss, on
// backend failure and on undecodable entries.
func (c *ResultCache) Get(ctx context.Context, key string, dst any) bool {
	ns := namespaceOf(key)

	raw, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			log.Printf("⚠️  [CACHE] Get %s failed, treating as miss: %v", key, err)
			c.observer.CacheError("get")
		}
		c.observer.CacheMiss(ns)
		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		log.Printf("⚠️  [CACHE] Dropping undecodable entry %s: %v", key, err)
		_ = c.backend.Delete(ctx, key)
		c.observer.CacheMiss(ns)
		return false
	}

	c.observer.CacheHit(ns)
	return true
}

// Set stores value at key, overwriting unconditionally. A ttl of 0 uses the cache TTL.
func (c *ResultCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("⚠️  [CACHE] Failed to encode %s: %v", key, err)
		c.observer.CacheError("encode")
		return
	}

	if err := c.backend.Set(ctx, key, raw, ttl); err != nil {
		log.Printf("⚠️  [CACHE] Set %s failed: %v", key, err)
		c.observer.CacheError("set")
	}
}

// Delete evicts keys
func (c *ResultCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.backend.Delete(ctx, keys...); err != nil {
		c.observer.CacheError("delete")
		return err
	}
	return nil
}

func namespaceOf(key string) string {
	if i := strings.Index(key, ":"); i > 0 {
		return key[:i]
	}
	return key
}
