package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"inkwell/internal/apperr"
	"inkwell/internal/cache"
	"inkwell/internal/cachekey"
	"inkwell/internal/database"
	"inkwell/internal/models"
)

// Post list sorting and ordering values
const (
	SortNewest          = "newest"
	SortRecentlyUpdated = "recently_updated"
	SortMostViewed      = "most_viewed"

	OrderAZ = "az"
	OrderZA = "za"
)

// PostListQuery is the parsed filter set of the post list endpoint
type PostListQuery struct {
	Search     string
	Sorting    string
	Ordering   string
	Author     string
	Categories []string // ids or slugs
	Page       int
}

// PostInput holds the author-editable fields of a post
type PostInput struct {
	Author       string
	Title        string
	Description  string
	Content      string
	Keywords     string
	Slug         string
	CategorySlug string
	Status       string
}

// PostService serves the cached post read paths and the author write paths
type PostService struct {
	db           *database.DB
	results      *cache.ResultCache
	impressions  *ImpressionService
	analytics    *AnalyticsService
	engagement   *EngagementService
	invalidation *InvalidationService
	pageSize     int
}

// NewPostService creates a new post service
func NewPostService(
	db *database.DB,
	results *cache.ResultCache,
	impressions *ImpressionService,
	analytics *AnalyticsService,
	engagement *EngagementService,
	invalidation *InvalidationService,
	pageSize int,
) *PostService {
	return &PostService{
		db:           db,
		results:      results,
		impressions:  impressions,
		analytics:    analytics,
		engagement:   engagement,
		invalidation: invalidation,
		pageSize:     pageSize,
	}
}

// ParsePage reads the p parameter; absent means the first page
func ParsePage(params url.Values) (int, error) {
	raw := cachekey.Value(params, cachekey.ParamPage)
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, apperr.Validation("invalid page %q", raw)
	}
	return page, nil
}

// ParsePostListQuery validates the post list parameters
func ParsePostListQuery(params url.Values) (PostListQuery, error) {
	page, err := ParsePage(params)
	if err != nil {
		return PostListQuery{}, err
	}

	q := PostListQuery{
		Search:     cachekey.Value(params, cachekey.ParamSearch),
		Sorting:    cachekey.Value(params, cachekey.ParamSorting),
		Ordering:   cachekey.Value(params, cachekey.ParamOrdering),
		Author:     cachekey.Value(params, cachekey.ParamAuthor),
		Page:       page,
		Categories: cachekey.Values(params, cachekey.ParamCategory),
	}

	switch q.Sorting {
	case "", SortNewest, SortRecentlyUpdated, SortMostViewed:
	default:
		return PostListQuery{}, apperr.Validation("invalid sorting %q", q.Sorting)
	}
	switch q.Ordering {
	case "", OrderAZ, OrderZA:
	default:
		return PostListQuery{}, apperr.Validation("invalid ordering %q", q.Ordering)
	}
	return q, nil
}

// List serves a page of published posts. Every served post gets an impression,
// whether the page came from the cache or the database.
func (s *PostService) List(ctx context.Context, params url.Values) (*models.Page[models.Post], error) {
	q, err := ParsePostListQuery(params)
	if err != nil {
		return nil, err
	}

	key := cachekey.Derive(cachekey.PostList, params)
	page, _, err := cachedRead(ctx, s.results, key, func(ctx context.Context) (models.Page[models.Post], error) {
		return s.queryList(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	s.impressions.BumpAll(ctx, models.EntityPost, postIDs(page.Items))
	return &page, nil
}

// Get serves the detail of a published post, counts an impression and
// registers the visitor's view
func (s *PostService) Get(ctx context.Context, slug string, visitor models.VisitorIdentity) (*models.PostDetail, models.ViewResult, error) {
	if slug == "" {
		return nil, models.ViewResult{}, apperr.Validation("a valid slug must be provided")
	}

	key := cachekey.Derive(cachekey.PostDetail, cachekey.Params(cachekey.ParamSlug, slug))
	detail, _, err := cachedRead(ctx, s.results, key, func(ctx context.Context) (models.PostDetail, error) {
		post, err := s.GetBySlug(ctx, slug, true)
		if err != nil {
			return models.PostDetail{}, err
		}
		record, err := s.analytics.GetOrCreate(ctx, models.PostRef(post.ID))
		if err != nil {
			return models.PostDetail{}, err
		}
		return models.PostDetail{Post: *post, Analytics: record}, nil
	})
	if err != nil {
		return nil, models.ViewResult{}, err
	}

	s.impressions.Bump(ctx, models.PostRef(detail.ID))

	view, err := s.engagement.RegisterView(ctx, detail.ID, visitor)
	if err != nil {
		return nil, models.ViewResult{}, err
	}
	return &detail, view, nil
}

// GetBySlug loads a post without caching. publishedOnly hides drafts.
func (s *PostService) GetBySlug(ctx context.Context, slug string, publishedOnly bool) (*models.Post, error) {
	query := `SELECT ` + postColumns + `, p.content FROM posts p
		JOIN categories c ON c.id = p.category_id
		WHERE p.slug = ?`
	args := []any{slug}
	if publishedOnly {
		query += ` AND p.status = ?`
		args = append(args, models.PostStatusPublished)
	}

	post, err := scanPostWithContent(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("post %s does not exist", slug)
	}
	if err != nil {
		return nil, apperr.Transient(err, "failed to load post %s", slug)
	}
	return post, nil
}

// GetByID loads a post by id without caching
func (s *PostService) GetByID(ctx context.Context, id string) (*models.Post, error) {
	post, err := scanPostWithContent(s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+`, p.content FROM posts p
		JOIN categories c ON c.id = p.category_id
		WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("post %s does not exist", id)
	}
	if err != nil {
		return nil, apperr.Transient(err, "failed to load post %s", id)
	}
	return post, nil
}

// IncrementClick counts a click on a published post
func (s *PostService) IncrementClick(ctx context.Context, slug string) (*models.AnalyticsRecord, error) {
	post, err := s.GetBySlug(ctx, slug, true)
	if err != nil {
		return nil, err
	}
	return s.analytics.Increment(ctx, models.PostRef(post.ID), models.MetricClicks)
}

// Analytics returns the durable record of a post and its impressions not yet reconciled
func (s *PostService) Analytics(ctx context.Context, slug string) (*models.AnalyticsRecord, int64, error) {
	post, err := s.GetBySlug(ctx, slug, false)
	if err != nil {
		return nil, 0, err
	}
	record, err := s.analytics.GetOrCreate(ctx, models.PostRef(post.ID))
	if err != nil {
		return nil, 0, err
	}
	pending, err := s.impressions.Count(ctx, models.PostRef(post.ID))
	if err != nil {
		// the ephemeral counter is best effort
		pending = 0
	}
	return record, pending, nil
}

// Create stores a new post in the named category
func (s *PostService) Create(ctx context.Context, in PostInput) (*models.Post, error) {
	if err := validatePostInput(in, true); err != nil {
		return nil, err
	}
	category, err := s.categoryBySlug(ctx, in.CategorySlug)
	if err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = models.PostStatusDraft
	}

	now := time.Now().UTC()
	post := &models.Post{
		ID:           uuid.New().String(),
		Author:       in.Author,
		Title:        in.Title,
		Description:  in.Description,
		Content:      in.Content,
		Keywords:     in.Keywords,
		Slug:         in.Slug,
		CategoryID:   category.ID,
		CategorySlug: category.Slug,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO posts (id, author, title, description, content, keywords, slug, category_id, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			post.ID, post.Author, post.Title, post.Description, post.Content, post.Keywords,
			post.Slug, post.CategoryID, post.Status, post.CreatedAt, post.UpdatedAt); err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Conflict("a post with slug %s already exists", post.Slug)
			}
			return fmt.Errorf("failed to create post: %w", err)
		}
		// analytics rows exist from creation on
		return s.analytics.ensureRowTx(ctx, tx, models.PostRef(post.ID))
	})
	if err != nil {
		return nil, classify(err, "failed to create post %s", in.Slug)
	}
	return post, nil
}

// Update changes the post at slug; empty fields keep their value
func (s *PostService) Update(ctx context.Context, slug, author string, in PostInput) (*models.Post, error) {
	if err := validatePostInput(in, false); err != nil {
		return nil, err
	}

	post, err := s.GetBySlug(ctx, slug, false)
	if err != nil {
		return nil, err
	}
	if post.Author != author {
		return nil, apperr.NotFound("post %s does not exist", slug)
	}

	if in.CategorySlug != "" && in.CategorySlug != post.CategorySlug {
		category, err := s.categoryBySlug(ctx, in.CategorySlug)
		if err != nil {
			return nil, err
		}
		post.CategoryID, post.CategorySlug = category.ID, category.Slug
	}
	if in.Title != "" {
		post.Title = in.Title
	}
	if in.Description != "" {
		post.Description = in.Description
	}
	if in.Content != "" {
		post.Content = in.Content
	}
	if in.Keywords != "" {
		post.Keywords = in.Keywords
	}
	if in.Status != "" {
		post.Status = in.Status
	}
	post.UpdatedAt = time.Now().UTC()

	if _, err := s.db.ExecContext(ctx, `
		UPDATE posts SET title = ?, description = ?, content = ?, keywords = ?, category_id = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		post.Title, post.Description, post.Content, post.Keywords, post.CategoryID, post.Status, post.UpdatedAt,
		post.ID); err != nil {
		return nil, apperr.Transient(err, "failed to update post %s", slug)
	}

	s.invalidation.OnPostChanged(ctx, post.Slug)
	return post, nil
}

// Delete removes an author's post with its comments and engagement rows
func (s *PostService) Delete(ctx context.Context, slug, author string) error {
	post, err := s.GetBySlug(ctx, slug, false)
	if err != nil {
		return err
	}
	if post.Author != author {
		return apperr.NotFound("post %s does not exist", slug)
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM comments WHERE post_id = ?`,
			`DELETE FROM post_views WHERE post_id = ?`,
			`DELETE FROM post_interactions WHERE post_id = ?`,
			`DELETE FROM post_likes WHERE post_id = ?`,
			`DELETE FROM post_shares WHERE post_id = ?`,
			`DELETE FROM posts WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, post.ID); err != nil {
				return fmt.Errorf("failed to delete post %s: %w", slug, err)
			}
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM analytics WHERE entity_kind = ? AND entity_id = ?`, string(models.EntityPost), post.ID)
		return err
	})
	if err != nil {
		return apperr.Transient(err, "failed to delete post %s", slug)
	}

	s.impressions.Discard(ctx, models.PostRef(post.ID))
	s.invalidation.OnPostChanged(ctx, post.Slug)
	return nil
}

func (s *PostService) categoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	category, err := scanCategory(s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories c WHERE c.slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Validation("category %s does not exist", slug)
	}
	if err != nil {
		return nil, apperr.Transient(err, "failed to load category %s", slug)
	}
	return category, nil
}

func (s *PostService) queryList(ctx context.Context, q PostListQuery) (models.Page[models.Post], error) {
	var (
		where = []string{"p.status = ?"}
		args  = []any{models.PostStatusPublished}
	)

	if q.Search != "" {
		like := "%" + q.Search + "%"
		where = append(where, "(p.title LIKE ? OR p.description LIKE ? OR p.content LIKE ? OR p.keywords LIKE ?)")
		args = append(args, like, like, like, like)
	}
	if q.Author != "" {
		where = append(where, "p.author = ?")
		args = append(args, q.Author)
	}
	if len(q.Categories) > 0 {
		// each value matches a category id or slug
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(q.Categories)), ", ")
		where = append(where, fmt.Sprintf("(p.category_id IN (%s) OR c.slug IN (%s))", placeholders, placeholders))
		for range 2 {
			for _, c := range q.Categories {
				args = append(args, c)
			}
		}
	}

	query := `SELECT ` + postColumns + ` FROM posts p
		JOIN categories c ON c.id = p.category_id
		LEFT JOIN analytics a ON a.entity_kind = 'post' AND a.entity_id = p.id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + postOrder(q.Sorting, q.Ordering) + `
		LIMIT ? OFFSET ?`

	return queryPage(ctx, s.db, query, args, q.Page, s.pageSize, scanPost)
}

// postOrder applies ordering over sorting; newest first by default
func postOrder(sorting, ordering string) string {
	switch ordering {
	case OrderAZ:
		return "p.title ASC, p.id ASC"
	case OrderZA:
		return "p.title DESC, p.id ASC"
	}
	switch sorting {
	case SortRecentlyUpdated:
		return "p.updated_at DESC, p.id ASC"
	case SortMostViewed:
		return "COALESCE(a.views, 0) DESC, p.created_at DESC, p.id ASC"
	}
	return "p.created_at DESC, p.id ASC"
}

func validatePostInput(in PostInput, creating bool) error {
	if creating {
		var missing []string
		for name, value := range map[string]string{
			"author":   in.Author,
			"title":    in.Title,
			"content":  in.Content,
			"slug":     in.Slug,
			"category": in.CategorySlug,
		} {
			if strings.TrimSpace(value) == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return apperr.Validation("missing required fields: %s", strings.Join(sortedCopy(missing), ", "))
		}
	}
	switch in.Status {
	case "", models.PostStatusDraft, models.PostStatusPublished:
	default:
		return apperr.Validation("invalid status %q", in.Status)
	}
	return nil
}

func postIDs(posts []models.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}
