package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

// CategoryInput holds the fields of a new category
type CategoryInput struct {
	ParentSlug  string
	Name        string
	Title       string
	Description string
	Slug        string
}

// CategoryService serves the cached category read paths
type CategoryService struct {
	db          *database.DB
	results     *cache.ResultCache
	impressions *ImpressionService
	analytics   *AnalyticsService
	pageSize    int
}

// NewCategoryService creates a new category service
func NewCategoryService(db *database.DB, results *cache.ResultCache, impressions *ImpressionService, analytics *AnalyticsService, pageSize int) *CategoryService {
	return &CategoryService{
		db:          db,
		results:     results,
		impressions: impressions,
		analytics:   analytics,
		pageSize:    pageSize,
	}
}

// List serves a page of categories under parent_slug, or the top-level
// categories when it is absent. Every served category gets an impression.
func (s *CategoryService) List(ctx context.Context, params url.Values) (*models.Page[models.Category], error) {
	page, err := ParsePage(params)
	if err != nil {
		return nil, err
	}
	sorting := cachekey.Value(params, cachekey.ParamSorting)
	ordering := cachekey.Value(params, cachekey.ParamOrdering)
	switch sorting {
	case "", SortNewest, SortRecentlyUpdated, SortMostViewed:
	default:
		return nil, apperr.Validation("invalid sorting %q", sorting)
	}
	switch ordering {
	case "", OrderAZ, OrderZA:
	default:
		return nil, apperr.Validation("invalid ordering %q", ordering)
	}

	parentSlug := cachekey.Value(params, cachekey.ParamParentSlug)
	search := cachekey.Value(params, cachekey.ParamSearch)

	key := cachekey.Derive(cachekey.CategoryList, params)
	result, _, err := cachedRead(ctx, s.results, key, func(ctx context.Context) (models.Page[models.Category], error) {
		var (
			where []string
			args  []any
		)
		if parentSlug != "" {
			where = append(where, "c.parent_id = (SELECT parent.id FROM categories parent WHERE parent.slug = ?)")
			args = append(args, parentSlug)
		} else {
			where = append(where, "c.parent_id IS NULL")
		}
		if search != "" {
			like := "%" + search + "%"
			where = append(where, "(c.name LIKE ? OR c.slug LIKE ? OR c.title LIKE ? OR c.description LIKE ?)")
			args = append(args, like, like, like, like)
		}

		query := `SELECT ` + categoryColumns + ` FROM categories c
			LEFT JOIN analytics a ON a.entity_kind = 'category' AND a.entity_id = c.id
			WHERE ` + strings.Join(where, " AND ") + `
			ORDER BY ` + categoryOrder(sorting, ordering) + `
			LIMIT ? OFFSET ?`
		return queryPage(ctx, s.db, query, args, page, s.pageSize, scanCategory)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(result.Items))
	for i, c := range result.Items {
		ids[i] = c.ID
	}
	s.impressions.BumpAll(ctx, models.EntityCategory, ids)
	return &result, nil
}

// Posts serves a page of the published posts of the category at slug
func (s *CategoryService) Posts(ctx context.Context, slug string, params url.Values) (*models.Page[models.Post], error) {
	if slug == "" {
		return nil, apperr.Validation("missing slug parameter")
	}
	page, err := ParsePage(params)
	if err != nil {
		return nil, err
	}

	keyParams := cachekey.Params(cachekey.ParamSlug, slug, cachekey.ParamPage, cachekey.Value(params, cachekey.ParamPage))
	key := cachekey.Derive(cachekey.CategoryPosts, keyParams)
	result, _, err := cachedRead(ctx, s.results, key, func(ctx context.Context) (models.Page[models.Post], error) {
		category, err := s.GetBySlug(ctx, slug)
		if err != nil {
			return models.Page[models.Post]{}, err
		}
		query := `SELECT ` + postColumns + ` FROM posts p
			JOIN categories c ON c.id = p.category_id
			WHERE p.category_id = ? AND p.status = ?
			ORDER BY p.created_at DESC, p.id ASC
			LIMIT ? OFFSET ?`
		return queryPage(ctx, s.db, query, []any{category.ID, models.PostStatusPublished}, page, s.pageSize, scanPost)
	})
	if err != nil {
		return nil, err
	}

	s.impressions.BumpAll(ctx, models.EntityPost, postIDs(result.Items))
	return &result, nil
}

// GetBySlug loads a category without caching
func (s *CategoryService) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	category, err := scanCategory(s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories c WHERE c.slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("category %s does not exist", slug)
	}
	if err != nil {
		return nil, apperr.Transient(err, "failed to load category %s", slug)
	}
	return category, nil
}

// IncrementClick counts a click on the category at slug
func (s *CategoryService) IncrementClick(ctx context.Context, slug string) (*models.AnalyticsRecord, error) {
	category, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.analytics.Increment(ctx, models.CategoryRef(category.ID), models.MetricClicks)
}

// Create stores a new category, optionally under a parent
func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (*models.Category, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Slug) == "" {
		return nil, apperr.Validation("name and slug are required")
	}

	now := time.Now().UTC()
	category := &models.Category{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Title:       in.Title,
		Description: in.Description,
		Slug:        in.Slug,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.ParentSlug != "" {
		parent, err := s.GetBySlug(ctx, in.ParentSlug)
		if err != nil {
			return nil, err
		}
		category.ParentID = &parent.ID
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var parentID any
		if category.ParentID != nil {
			parentID = *category.ParentID
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, parent_id, name, title, description, slug, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			category.ID, parentID, category.Name, category.Title, category.Description, category.Slug,
			category.CreatedAt, category.UpdatedAt); err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Conflict("a category with slug %s already exists", category.Slug)
			}
			return fmt.Errorf("failed to create category: %w", err)
		}
		return s.analytics.ensureRowTx(ctx, tx, models.CategoryRef(category.ID))
	})
	if err != nil {
		return nil, classify(err, "failed to create category %s", in.Slug)
	}
	return category, nil
}

// categoryOrder applies ordering over sorting; names ascending by default
func categoryOrder(sorting, ordering string) string {
	switch ordering {
	case OrderAZ:
		return "c.name ASC, c.id ASC"
	case OrderZA:
		return "c.name DESC, c.id ASC"
	}
	switch sorting {
	case SortNewest:
		return "c.created_at DESC, c.id ASC"
	case SortRecentlyUpdated:
		return "c.updated_at DESC, c.id ASC"
	case SortMostViewed:
		return "COALESCE(a.views, 0) DESC, c.name ASC, c.id ASC"
	}
	return "c.name ASC, c.id ASC"
}
