package services

import (
	"context"
	"log"

	"inkwell/internal/cache"
	"inkwell/internal/cachekey"
	"inkwell/internal/models"
)

// InvalidationService evicts every cached response made stale by a write.
// Cache failures are logged and never fail the write; entries then expire
// within one TTL window.
type InvalidationService struct {
	registry  *cache.Registry
	results   *cache.ResultCache
	analytics *AnalyticsService
}

// NewInvalidationService creates a new invalidation service
func NewInvalidationService(registry *cache.Registry, results *cache.ResultCache, analytics *AnalyticsService) *InvalidationService {
	return &InvalidationService{
		registry:  registry,
		results:   results,
		analytics: analytics,
	}
}

// OnCommentCreated evicts the post's comment pages and, for a reply, the parent's reply pages
func (s *InvalidationService) OnCommentCreated(ctx context.Context, postSlug string, comment *models.Comment) {
	s.invalidateCommentScopes(ctx, postSlug, comment)
	s.evictPostDetail(ctx, postSlug)
}

// OnCommentEdited evicts the same scopes as a creation
func (s *InvalidationService) OnCommentEdited(ctx context.Context, postSlug string, comment *models.Comment) {
	s.invalidateCommentScopes(ctx, postSlug, comment)
}

// OnCommentDeleted evicts the comment scopes, the deleted comment's own reply
// pages, and sets the post's comment counter to authoritativeCount.
// Only the counter update can fail the call.
func (s *InvalidationService) OnCommentDeleted(ctx context.Context, postSlug string, comment *models.Comment, authoritativeCount int64) error {
	s.invalidateCommentScopes(ctx, postSlug, comment)
	s.invalidate(ctx, cachekey.CommentRepliesScope(comment.ID))
	s.evictPostDetail(ctx, postSlug)

	if _, err := s.analytics.RecomputeCommentCount(ctx, comment.PostID, authoritativeCount); err != nil {
		return err
	}
	return nil
}

// OnEngagementChanged evicts the post detail, whose analytics snapshot embeds
// the like and share counters
func (s *InvalidationService) OnEngagementChanged(ctx context.Context, postSlug string) {
	s.evictPostDetail(ctx, postSlug)
}

// OnPostChanged evicts the cached detail and comment pages of an edited or deleted post
func (s *InvalidationService) OnPostChanged(ctx context.Context, postSlug string) {
	s.evictPostDetail(ctx, postSlug)
	s.invalidate(ctx, cachekey.PostCommentsScope(postSlug))
}

func (s *InvalidationService) invalidateCommentScopes(ctx context.Context, postSlug string, comment *models.Comment) {
	s.invalidate(ctx, cachekey.PostCommentsScope(postSlug))
	if comment.IsReply() {
		s.invalidate(ctx, cachekey.CommentRepliesScope(*comment.ParentID))
	}
}

func (s *InvalidationService) invalidate(ctx context.Context, scope cachekey.Scope) {
	if _, err := s.registry.Invalidate(ctx, scope); err != nil {
		log.Printf("⚠️  [INVALIDATION] Failed to invalidate %s: %v", scope, err)
	}
}

func (s *InvalidationService) evictPostDetail(ctx context.Context, postSlug string) {
	key := cachekey.Derive(cachekey.PostDetail, cachekey.Params(cachekey.ParamSlug, postSlug))
	if err := s.results.Delete(ctx, key); err != nil {
		log.Printf("⚠️  [INVALIDATION] Failed to evict %s: %v", key, err)
	}
}
