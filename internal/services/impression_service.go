package services

import (
	"context"
	"fmt"
	"log"

	"inkwell/internal/cache"
	"inkwell/internal/models"
)

// ImpressionService counts how often entities are served. Counts live on the
// cache backend, apart from the durable analytics rows, and are moved into
// them by the reconciliation job.
type ImpressionService struct {
	backend cache.Backend
	metrics *Metrics
}

// PendingImpressions is a drained ephemeral count awaiting reconciliation
type PendingImpressions struct {
	Ref   models.EntityRef
	Count int64
}

// NewImpressionService creates a new impression service
func NewImpressionService(backend cache.Backend, metrics *Metrics) *ImpressionService {
	return &ImpressionService{
		backend: backend,
		metrics: metrics,
	}
}

// impressionKey returns e.g. post:impressions:{id}
func impressionKey(ref models.EntityRef) string {
	return fmt.Sprintf("%s:impressions:%s", ref.Kind, ref.ID)
}

func dirtyKey(kind models.EntityKind) string {
	return fmt.Sprintf("impressions:dirty:%s", kind)
}

// Bump records one impression. Failures are logged and swallowed.
func (s *ImpressionService) Bump(ctx context.Context, ref models.EntityRef) {
	if !ref.Kind.Valid() || ref.ID == "" {
		return
	}
	if err := s.add(ctx, ref, 1); err != nil {
		log.Printf("⚠️  [IMPRESSIONS] Failed to bump %s: %v", ref, err)
		return
	}
	s.metrics.RecordImpressionBumps(string(ref.Kind), 1)
}

// BumpAll records one impression for every id, e.g. each post of a list page
func (s *ImpressionService) BumpAll(ctx context.Context, kind models.EntityKind, ids []string) {
	bumped := 0
	for _, id := range ids {
		ref := models.EntityRef{Kind: kind, ID: id}
		if !ref.Kind.Valid() || id == "" {
			continue
		}
		if err := s.add(ctx, ref, 1); err != nil {
			log.Printf("⚠️  [IMPRESSIONS] Failed to bump %s: %v", ref, err)
			continue
		}
		bumped++
	}
	s.metrics.RecordImpressionBumps(string(kind), bumped)
}

// Discard drops the pending count of a deleted entity. Failures are logged;
// reconciliation skips entities that no longer exist anyway.
func (s *ImpressionService) Discard(ctx context.Context, ref models.EntityRef) {
	if err := s.backend.SRem(ctx, dirtyKey(ref.Kind), ref.ID); err != nil {
		log.Printf("⚠️  [IMPRESSIONS] Failed to clear pending flag for %s: %v", ref, err)
	}
	if _, err := s.backend.TakeInt(ctx, impressionKey(ref)); err != nil {
		log.Printf("⚠️  [IMPRESSIONS] Failed to discard impressions for %s: %v", ref, err)
	}
}

// Count returns the impressions not yet reconciled for ref
func (s *ImpressionService) Count(ctx context.Context, ref models.EntityRef) (int64, error) {
	// INCRBY 0 reads the counter on every backend
	n, err := s.backend.IncrBy(ctx, impressionKey(ref), 0)
	if err != nil {
		return 0, fmt.Errorf("failed to read impressions for %s: %w", ref, err)
	}
	return n, nil
}

// Drain takes every pending count of kind, resetting the ephemeral counters.
// The dirty flag is cleared before the counter is taken, so a bump racing
// with the drain is either taken now or flagged for the next drain.
func (s *ImpressionService) Drain(ctx context.Context, kind models.EntityKind) ([]PendingImpressions, error) {
	ids, err := s.backend.SMembers(ctx, dirtyKey(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending %s impressions: %w", kind, err)
	}

	pending := make([]PendingImpressions, 0, len(ids))
	for _, id := range ids {
		ref := models.EntityRef{Kind: kind, ID: id}

		if err := s.backend.SRem(ctx, dirtyKey(kind), id); err != nil {
			return pending, fmt.Errorf("failed to clear pending flag for %s: %w", ref, err)
		}

		n, err := s.backend.TakeInt(ctx, impressionKey(ref))
		if err != nil {
			// put the flag back so the count is retried next drain
			_ = s.backend.SAdd(ctx, dirtyKey(kind), id, 0)
			return pending, fmt.Errorf("failed to take impressions for %s: %w", ref, err)
		}
		if n > 0 {
			pending = append(pending, PendingImpressions{Ref: ref, Count: n})
		}
	}
	return pending, nil
}

// Restore returns a drained count that could not be applied
func (s *ImpressionService) Restore(ctx context.Context, p PendingImpressions) error {
	if p.Count <= 0 {
		return nil
	}
	return s.add(ctx, p.Ref, p.Count)
}

func (s *ImpressionService) add(ctx context.Context, ref models.EntityRef, n int64) error {
	if _, err := s.backend.IncrBy(ctx, impressionKey(ref), n); err != nil {
		return err
	}
	return s.backend.SAdd(ctx, dirtyKey(ref.Kind), ref.ID, 0)
}
