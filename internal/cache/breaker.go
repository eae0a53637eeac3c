package cache

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig holds configuration for the backend circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig trips after most of a short burst of backend calls fail
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      10,
	}
}

// BreakerBackend fails fast while the wrapped backend is unhealthy, so a
// Redis outage costs the read path a map lookup instead of a dial timeout.
type BreakerBackend struct {
	next Backend
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerBackend wraps next with a circuit breaker
func NewBreakerBackend(next Backend, config BreakerConfig) *BreakerBackend {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("⚡ [CACHE] Circuit breaker '%s' state changed from %v to %v", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// A miss is a healthy answer
			return err == nil || errors.Is(err, ErrMiss)
		},
	})

	return &BreakerBackend{next: next, cb: cb}
}

// State exposes the breaker state for health reporting
func (b *BreakerBackend) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerBackend) run(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

func (b *BreakerBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.run(func() (any, error) { return b.next.Get(ctx, key) })
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (b *BreakerBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.run(func() (any, error) { return nil, b.next.Set(ctx, key, value, ttl) })
	return err
}

func (b *BreakerBackend) Delete(ctx context.Context, keys ...string) error {
	_, err := b.run(func() (any, error) { return nil, b.next.Delete(ctx, keys...) })
	return err
}

func (b *BreakerBackend) SAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	_, err := b.run(func() (any, error) { return nil, b.next.SAdd(ctx, key, member, ttl) })
	return err
}

func (b *BreakerBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	v, err := b.run(func() (any, error) { return b.next.SMembers(ctx, key) })
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (b *BreakerBackend) SRem(ctx context.Context, key string, members ...string) error {
	_, err := b.run(func() (any, error) { return nil, b.next.SRem(ctx, key, members...) })
	return err
}

func (b *BreakerBackend) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	v, err := b.run(func() (any, error) { return b.next.IncrBy(ctx, key, n) })
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (b *BreakerBackend) TakeInt(ctx context.Context, key string) (int64, error) {
	v, err := b.run(func() (any, error) { return b.next.TakeInt(ctx, key) })
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Ping bypasses the breaker so health checks see the real backend state
func (b *BreakerBackend) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

func (b *BreakerBackend) Close() error {
	return b.next.Close()
}
