package services

import (
	"context"
	"database/sql"
	"slices"

	"inkwell/internal/apperr"
	"inkwell/internal/cache"
	"inkwell/internal/database"
	"inkwell/internal/models"
)

const postColumns = `p.id, p.author, p.title, p.description, p.keywords, p.slug,
	p.category_id, c.slug, p.status, p.created_at, p.updated_at`

const categoryColumns = `c.id, c.parent_id, c.name, c.title, c.description, c.slug, c.created_at, c.updated_at`

const commentColumns = `id, post_id, parent_id, user_id, content, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// cachedRead serves key from the result cache, or loads and stores it.
// The bool reports a cache hit. Load errors are not cached.
func cachedRead[T any](ctx context.Context, results *cache.ResultCache, key string, load func(context.Context) (T, error)) (T, bool, error) {
	var value T
	if results.Get(ctx, key, &value) {
		return value, true, nil
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}

	results.Set(ctx, key, value, 0)
	return value, false, nil
}

// queryPage runs query with LIMIT/OFFSET args appended and fetches one extra
// row to learn whether a next page exists
func queryPage[T any](ctx context.Context, db *database.DB, query string, args []any, page, pageSize int, scan func(rowScanner) (*T, error)) (models.Page[T], error) {
	args = append(slices.Clone(args), pageSize+1, (page-1)*pageSize)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return models.Page[T]{}, apperr.Transient(err, "failed to query page %d", page)
	}
	defer rows.Close()

	items := make([]T, 0, pageSize)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return models.Page[T]{}, apperr.Transient(err, "failed to scan row")
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return models.Page[T]{}, apperr.Transient(err, "failed to query page %d", page)
	}

	hasNext := len(items) > pageSize
	if hasNext {
		items = items[:pageSize]
	}
	return models.Page[T]{Items: items, Page: page, HasNext: hasNext}, nil
}

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	err := row.Scan(
		&post.ID,
		&post.Author,
		&post.Title,
		&post.Description,
		&post.Keywords,
		&post.Slug,
		&post.CategoryID,
		&post.CategorySlug,
		&post.Status,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func scanPostWithContent(row rowScanner) (*models.Post, error) {
	var post models.Post
	err := row.Scan(
		&post.ID,
		&post.Author,
		&post.Title,
		&post.Description,
		&post.Keywords,
		&post.Slug,
		&post.CategoryID,
		&post.CategorySlug,
		&post.Status,
		&post.CreatedAt,
		&post.UpdatedAt,
		&post.Content,
	)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func scanCategory(row rowScanner) (*models.Category, error) {
	var (
		category models.Category
		parentID sql.NullString
	)
	err := row.Scan(
		&category.ID,
		&parentID,
		&category.Name,
		&category.Title,
		&category.Description,
		&category.Slug,
		&category.CreatedAt,
		&category.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		category.ParentID = &parentID.String
	}
	return &category, nil
}

func scanComment(row rowScanner) (*models.Comment, error) {
	var (
		comment  models.Comment
		parentID sql.NullString
	)
	err := row.Scan(
		&comment.ID,
		&comment.PostID,
		&parentID,
		&comment.UserID,
		&comment.Content,
		&comment.IsActive,
		&comment.CreatedAt,
		&comment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		comment.ParentID = &parentID.String
	}
	return &comment, nil
}

// classify keeps classified errors and marks storage failures retryable
func classify(err error, format string, args ...any) error {
	if err == nil || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Transient(err, format, args...)
}

func sortedCopy(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return out
}
