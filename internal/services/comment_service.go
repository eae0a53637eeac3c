package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"inkwell/internal/apperr"
	"inkwell/internal/cache"
	"inkwell/internal/cachekey"
	"inkwell/internal/database"
	"inkwell/internal/models"
)

// CommentInput holds a new comment or reply
type CommentInput struct {
	UserID    string
	IPAddress string
	Content   string
}

// CommentService serves comment and reply pages and applies comment writes.
// Every cached page is registered under its scope so writes can evict it.
type CommentService struct {
	db           *database.DB
	results      *cache.ResultCache
	registry     *cache.Registry
	posts        *PostService
	analytics    *AnalyticsService
	engagement   *EngagementService
	invalidation *InvalidationService
	pageSize     int
}

// NewCommentService creates a new comment service
func NewCommentService(
	db *database.DB,
	results *cache.ResultCache,
	registry *cache.Registry,
	posts *PostService,
	analytics *AnalyticsService,
	engagement *EngagementService,
	invalidation *InvalidationService,
	pageSize int,
) *CommentService {
	return &CommentService{
		db:           db,
		results:      results,
		registry:     registry,
		posts:        posts,
		analytics:    analytics,
		engagement:   engagement,
		invalidation: invalidation,
		pageSize:     pageSize,
	}
}

// ListComments serves a page of a post's active top-level comments
func (s *CommentService) ListComments(ctx context.Context, postSlug string, params url.Values) (*models.Page[models.Comment], error) {
	if postSlug == "" {
		return nil, apperr.Validation("a valid post slug must be provided")
	}
	page, err := ParsePage(params)
	if err != nil {
		return nil, err
	}

	key := cachekey.Derive(cachekey.PostComments,
		cachekey.Params(cachekey.ParamSlug, postSlug, cachekey.ParamPage, cachekey.Value(params, cachekey.ParamPage)))
	result, hit, err := cachedRead(ctx, s.results, key, func(ctx context.Context) (models.Page[models.Comment], error) {
		post, err := s.posts.GetBySlug(ctx, postSlug, true)
		if err != nil {
			return models.Page[models.Comment]{}, err
		}
		query := `SELECT ` + commentColumns + ` FROM comments
			WHERE post_id = ? AND parent_id IS NULL AND is_active = ?
			ORDER BY created_at DESC, id ASC
			LIMIT ? OFFSET ?`
		return queryPage(ctx, s.db, query, []any{post.ID, true}, page, s.pageSize, scanComment)
	})
	if err != nil {
		return nil, err
	}

	if !hit {
		s.register(ctx, cachekey.PostCommentsScope(postSlug), key)
	}
	return &result, nil
}

// ListReplies serves a page of a comment's active replies
func (s *CommentService) ListReplies(ctx context.Context, commentID string, params url.Values) (*models.Page[models.Comment], error) {
	if commentID == "" {
		return nil, apperr.Validation("a valid comment_id must be provided")
	}
	page, err := ParsePage(params)
	if err != nil {
		return nil, err
	}

	key := cachekey.Derive(cachekey.CommentReplies,
		cachekey.Params(cachekey.ParamCommentID, commentID, cachekey.ParamPage, cachekey.Value(params, cachekey.ParamPage)))
	result, hit, err := cachedRead(ctx, s.results, key, func(ctx context.Context) (models.Page[models.Comment], error) {
		if _, err := s.Get(ctx, commentID); err != nil {
			return models.Page[models.Comment]{}, err
		}
		query := `SELECT ` + commentColumns + ` FROM comments
			WHERE parent_id = ? AND is_active = ?
			ORDER BY created_at DESC, id ASC
			LIMIT ? OFFSET ?`
		return queryPage(ctx, s.db, query, []any{commentID, true}, page, s.pageSize, scanComment)
	})
	if err != nil {
		return nil, err
	}

	if !hit {
		s.register(ctx, cachekey.CommentRepliesScope(commentID), key)
	}
	return &result, nil
}

// Get loads a comment by id
func (s *CommentService) Get(ctx context.Context, id string) (*models.Comment, error) {
	comment, err := scanComment(s.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("comment with id %s does not exist", id)
	}
	if err != nil {
		return nil, apperr.Transient(err, "failed to load comment %s", id)
	}
	return comment, nil
}

// Create adds a top-level comment to the post at postSlug. The comment is
// logged as an interaction and counted in the post's comment counter.
func (s *CommentService) Create(ctx context.Context, postSlug string, in CommentInput) (*models.Comment, error) {
	if err := validateCommentInput(in); err != nil {
		return nil, err
	}
	post, err := s.posts.GetBySlug(ctx, postSlug, true)
	if err != nil {
		return nil, err
	}

	comment := newComment(post.ID, nil, in)
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertTx(ctx, tx, comment, in.IPAddress); err != nil {
			return err
		}
		return s.analytics.IncrementTx(ctx, tx, models.PostRef(post.ID), models.MetricComments, 1)
	})
	if err != nil {
		return nil, classify(err, "failed to create comment on %s", postSlug)
	}

	s.invalidation.OnCommentCreated(ctx, post.Slug, comment)
	return comment, nil
}

// Reply answers the comment at parentID. Replies are logged as comment
// interactions but leave the post's comment counter alone.
func (s *CommentService) Reply(ctx context.Context, parentID string, in CommentInput) (*models.Comment, error) {
	if err := validateCommentInput(in); err != nil {
		return nil, err
	}
	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	post, err := s.posts.GetByID(ctx, parent.PostID)
	if err != nil {
		return nil, err
	}

	reply := newComment(post.ID, &parent.ID, in)
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.insertTx(ctx, tx, reply, in.IPAddress)
	})
	if err != nil {
		return nil, classify(err, "failed to reply to comment %s", parentID)
	}

	s.invalidation.OnCommentCreated(ctx, post.Slug, reply)
	return reply, nil
}

// Edit replaces the content of a user's own comment
func (s *CommentService) Edit(ctx context.Context, id, userID, content string) (*models.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("content is required")
	}
	comment, err := s.ownComment(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	post, err := s.posts.GetByID(ctx, comment.PostID)
	if err != nil {
		return nil, err
	}

	comment.Content = content
	comment.UpdatedAt = time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE comments SET content = ?, updated_at = ? WHERE id = ?`,
		comment.Content, comment.UpdatedAt, comment.ID); err != nil {
		return nil, apperr.Transient(err, "failed to update comment %s", id)
	}

	s.invalidation.OnCommentEdited(ctx, post.Slug, comment)
	return comment, nil
}

// Delete removes a user's own comment together with its replies, then resets
// the post's comment counter to the exact number of active top-level comments
func (s *CommentService) Delete(ctx context.Context, id, userID string) error {
	comment, err := s.ownComment(ctx, id, userID)
	if err != nil {
		return err
	}
	post, err := s.posts.GetByID(ctx, comment.PostID)
	if err != nil {
		return err
	}

	var remaining int64
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM comments WHERE id = ? OR parent_id = ?`, comment.ID, comment.ID); err != nil {
			return fmt.Errorf("failed to delete comment: %w", err)
		}
		return tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM comments WHERE post_id = ? AND parent_id IS NULL AND is_active = ?`,
			post.ID, true).Scan(&remaining)
	})
	if err != nil {
		return apperr.Transient(err, "failed to delete comment %s", id)
	}

	return s.invalidation.OnCommentDeleted(ctx, post.Slug, comment, remaining)
}

func (s *CommentService) ownComment(ctx context.Context, id, userID string) (*models.Comment, error) {
	if id == "" {
		return nil, apperr.Validation("a valid comment id must be provided")
	}
	comment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// other users' comments are reported as missing
	if comment.UserID != userID {
		return nil, apperr.NotFound("comment with id %s does not exist", id)
	}
	return comment, nil
}

func (s *CommentService) insertTx(ctx context.Context, tx *sql.Tx, comment *models.Comment, ip string) error {
	var parentID any
	if comment.ParentID != nil {
		parentID = *comment.ParentID
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, parent_id, user_id, content, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		comment.ID, comment.PostID, parentID, comment.UserID, comment.Content, comment.IsActive,
		comment.CreatedAt, comment.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}

	return s.engagement.logInteractionTx(ctx, tx, models.EngagementEvent{
		PostID:    comment.PostID,
		UserID:    comment.UserID,
		Kind:      models.InteractionComment,
		CommentID: &comment.ID,
		IPAddress: ip,
	})
}

// register indexes key under scope. An entry that cannot be indexed would
// survive invalidation, so it is evicted instead.
func (s *CommentService) register(ctx context.Context, scope cachekey.Scope, key string) {
	if err := s.registry.Register(ctx, scope, key); err != nil {
		log.Printf("⚠️  [COMMENTS] %v", err)
		if err := s.results.Delete(ctx, key); err != nil {
			log.Printf("⚠️  [COMMENTS] failed to evict unindexed %s: %v", key, err)
		}
	}
}

func newComment(postID string, parentID *string, in CommentInput) *models.Comment {
	now := time.Now().UTC()
	return &models.Comment{
		ID:        uuid.New().String(),
		PostID:    postID,
		ParentID:  parentID,
		UserID:    in.UserID,
		Content:   in.Content,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func validateCommentInput(in CommentInput) error {
	if in.UserID == "" {
		return apperr.Validation("a signed-in user is required to comment")
	}
	if strings.TrimSpace(in.Content) == "" {
		return apperr.Validation("content is required")
	}
	return nil
}
