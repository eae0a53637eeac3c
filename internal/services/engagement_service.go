package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"inkwell/internal/apperr"
	"inkwell/internal/database"
	"inkwell/internal/models"
)

// EngagementService records views, likes, shares and comment interactions.
// Each event writes its uniqueness record, its interaction log entry and its
// counter increment in one transaction.
type EngagementService struct {
	db           *database.DB
	analytics    *AnalyticsService
	invalidation *InvalidationService
	metrics      *Metrics
}

// NewEngagementService creates a new engagement service
func NewEngagementService(db *database.DB, analytics *AnalyticsService, invalidation *InvalidationService, metrics *Metrics) *EngagementService {
	return &EngagementService{
		db:           db,
		analytics:    analytics,
		invalidation: invalidation,
		metrics:      metrics,
	}
}

// RegisterView counts a view at most once per (post, ip, user).
// A repeat view is reported with Counted false and changes nothing.
func (s *EngagementService) RegisterView(ctx context.Context, postID string, visitor models.VisitorIdentity) (models.ViewResult, error) {
	if postID == "" {
		return models.ViewResult{}, apperr.Validation("post id is required")
	}

	outcome := models.AlreadyExists
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		// The unique key decides the race; the loser inserts nothing
		res, err := tx.ExecContext(ctx,
			s.db.InsertIgnore()+` post_views (post_id, ip_address, user_id, created_at) VALUES (?, ?, ?, ?)`,
			postID, visitor.IPAddress, visitor.UserID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to record unique view: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read unique view result: %w", err)
		}
		if inserted == 0 {
			return nil
		}

		if err := s.logInteractionTx(ctx, tx, models.EngagementEvent{
			PostID:    postID,
			UserID:    visitor.UserID,
			Kind:      models.InteractionView,
			IPAddress: visitor.IPAddress,
		}); err != nil {
			return err
		}
		if err := s.analytics.IncrementTx(ctx, tx, models.PostRef(postID), models.MetricViews, 1); err != nil {
			return err
		}

		outcome = models.Created
		return nil
	})
	if err != nil {
		return models.ViewResult{}, s.writeError("view", postID, err)
	}

	s.metrics.RecordEngagement(string(models.InteractionView), outcome.String())
	if outcome == models.Created {
		s.metrics.RecordIncrement(string(models.EntityPost), models.MetricViews.String(), 1)
	}
	return models.ViewResult{Counted: outcome == models.Created, Outcome: outcome}, nil
}

// Like records a user's like. A second like from the same user is a Conflict.
func (s *EngagementService) Like(ctx context.Context, post *models.Post, userID, ip string) (*models.AnalyticsRecord, error) {
	if userID == "" {
		return nil, apperr.Validation("a signed-in user is required to like a post")
	}

	var record *models.AnalyticsRecord
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO post_likes (post_id, user_id, created_at) VALUES (?, ?, ?)`,
			post.ID, userID, time.Now().UTC())
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("you have already liked this post")
		}
		if err != nil {
			return fmt.Errorf("failed to record like: %w", err)
		}

		if err := s.logInteractionTx(ctx, tx, models.EngagementEvent{
			PostID:    post.ID,
			UserID:    userID,
			Kind:      models.InteractionLike,
			IPAddress: ip,
		}); err != nil {
			return err
		}
		if err := s.analytics.IncrementTx(ctx, tx, models.PostRef(post.ID), models.MetricLikes, 1); err != nil {
			return err
		}

		record, err = s.analytics.GetTx(ctx, tx, models.PostRef(post.ID))
		return err
	})
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			s.metrics.RecordEngagement(string(models.InteractionLike), "conflict")
		}
		return nil, s.writeError("like", post.ID, err)
	}

	s.metrics.RecordEngagement(string(models.InteractionLike), models.Created.String())
	s.invalidation.OnEngagementChanged(ctx, post.Slug)
	return record, nil
}

// Unlike removes a like and resets the like counter to the exact row count
func (s *EngagementService) Unlike(ctx context.Context, post *models.Post, userID string) (*models.AnalyticsRecord, error) {
	if userID == "" {
		return nil, apperr.Validation("a signed-in user is required to unlike a post")
	}

	var record *models.AnalyticsRecord
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM post_likes WHERE post_id = ? AND user_id = ?`, post.ID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete like: %w", err)
		}
		removed, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read like deletion result: %w", err)
		}
		if removed == 0 {
			return apperr.Validation("you have not liked this post")
		}

		var count int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM post_likes WHERE post_id = ?`, post.ID).Scan(&count); err != nil {
			return fmt.Errorf("failed to count likes: %w", err)
		}
		if err := s.analytics.SetCountTx(ctx, tx, models.PostRef(post.ID), models.MetricLikes, count); err != nil {
			return err
		}

		record, err = s.analytics.GetTx(ctx, tx, models.PostRef(post.ID))
		return err
	})
	if err != nil {
		return nil, s.writeError("unlike", post.ID, err)
	}

	s.metrics.RecordEngagement("unlike", "removed")
	s.invalidation.OnEngagementChanged(ctx, post.Slug)
	return record, nil
}

// Share records a share on platform. Anonymous shares are allowed.
func (s *EngagementService) Share(ctx context.Context, post *models.Post, userID, ip, platform string) (*models.AnalyticsRecord, error) {
	parsed, ok := models.ParseSharePlatform(platform)
	if !ok {
		names := make([]string, len(models.SharePlatforms))
		for i, p := range models.SharePlatforms {
			names[i] = string(p)
		}
		return nil, apperr.Validation("invalid platform %q, valid options are: %s", platform, strings.Join(names, ", "))
	}

	var record *models.AnalyticsRecord
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO post_shares (id, post_id, user_id, platform, created_at) VALUES (?, ?, ?, ?, ?)`,
			uuid.New().String(), post.ID, userID, string(parsed), time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to record share: %w", err)
		}

		if err := s.logInteractionTx(ctx, tx, models.EngagementEvent{
			PostID:    post.ID,
			UserID:    userID,
			Kind:      models.InteractionShare,
			IPAddress: ip,
		}); err != nil {
			return err
		}
		if err := s.analytics.IncrementTx(ctx, tx, models.PostRef(post.ID), models.MetricShares, 1); err != nil {
			return err
		}

		var err error
		record, err = s.analytics.GetTx(ctx, tx, models.PostRef(post.ID))
		return err
	})
	if err != nil {
		return nil, s.writeError("share", post.ID, err)
	}

	s.metrics.RecordEngagement(string(models.InteractionShare), string(parsed))
	s.invalidation.OnEngagementChanged(ctx, post.Slug)
	return record, nil
}

// Events returns the interaction log of a post, newest first
func (s *EngagementService) Events(ctx context.Context, postID string, kind models.InteractionKind) ([]models.EngagementEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, user_id, interaction_type, comment_id, ip_address, created_at
		FROM post_interactions
		WHERE post_id = ? AND interaction_type = ?
		ORDER BY created_at DESC`, postID, string(kind))
	if err != nil {
		return nil, apperr.Transient(err, "failed to list interactions of post %s", postID)
	}
	defer rows.Close()

	var events []models.EngagementEvent
	for rows.Next() {
		var (
			event     models.EngagementEvent
			eventKind string
			commentID sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.PostID, &event.UserID, &eventKind, &commentID,
			&event.IPAddress, &event.CreatedAt); err != nil {
			return nil, apperr.Transient(err, "failed to scan interaction")
		}
		event.Kind = models.InteractionKind(eventKind)
		if commentID.Valid {
			event.CommentID = &commentID.String
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transient(err, "failed to list interactions of post %s", postID)
	}
	return events, nil
}

// logInteractionTx appends an event to the interaction log
func (s *EngagementService) logInteractionTx(ctx context.Context, tx *sql.Tx, event models.EngagementEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var commentID any
	if event.CommentID != nil {
		commentID = *event.CommentID
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO post_interactions (id, post_id, user_id, interaction_type, comment_id, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.PostID, event.UserID, string(event.Kind), commentID, event.IPAddress, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log %s interaction: %w", event.Kind, err)
	}
	return nil
}

// writeError keeps classified errors and surfaces storage failures as retryable
func (s *EngagementService) writeError(op, postID string, err error) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	s.metrics.RecordCounterError(op)
	log.Printf("❌ [ENGAGEMENT] %s failed for post %s: %v", op, postID, err)
	return apperr.Transient(err, "failed to record %s", op)
}
