package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"inkwell/internal/cache"
	"inkwell/internal/cachekey"
	"inkwell/internal/database"
	"inkwell/internal/models"
)

const testPageSize = 2

type testEnv struct {
	db           *database.DB
	backend      cache.Backend
	results      *cache.ResultCache
	registry     *cache.Registry
	metrics      *Metrics
	analytics    *AnalyticsService
	impressions  *ImpressionService
	invalidation *InvalidationService
	engagement   *EngagementService
	posts        *PostService
	categories   *CategoryService
	comments     *CommentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithBackend(t, cache.NewMemoryBackend(time.Minute))
}

func newTestEnvWithBackend(t *testing.T, backend cache.Backend) *testEnv {
	t.Helper()

	db, err := database.New("sqlite://" + filepath.Join(t.TempDir(), "blog.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	metrics := NewMetrics(prometheus.NewRegistry())
	results := cache.NewResultCache(backend, cache.WithObserver(metrics))
	registry := cache.NewRegistry(backend, results, cache.WithObserver(metrics))

	env := &testEnv{
		db:       db,
		backend:  backend,
		results:  results,
		registry: registry,
		metrics:  metrics,
	}
	env.analytics = NewAnalyticsService(db, metrics)
	env.impressions = NewImpressionService(backend, metrics)
	env.invalidation = NewInvalidationService(registry, results, env.analytics)
	env.engagement = NewEngagementService(db, env.analytics, env.invalidation, metrics)
	env.posts = NewPostService(db, results, env.impressions, env.analytics, env.engagement, env.invalidation, testPageSize)
	env.categories = NewCategoryService(db, results, env.impressions, env.analytics, testPageSize)
	env.comments = NewCommentService(db, results, registry, env.posts, env.analytics, env.engagement, env.invalidation, testPageSize)
	return env
}

func (e *testEnv) seedCategory(t *testing.T, slug, parentSlug string) *models.Category {
	t.Helper()
	category, err := e.categories.Create(context.Background(), CategoryInput{
		ParentSlug: parentSlug,
		Name:       slug,
		Title:      "All about " + slug,
		Slug:       slug,
	})
	if err != nil {
		t.Fatalf("Failed to create category %s: %v", slug, err)
	}
	return category
}

func (e *testEnv) seedPost(t *testing.T, slug, title, categorySlug string) *models.Post {
	t.Helper()
	post, err := e.posts.Create(context.Background(), PostInput{
		Author:       "alice",
		Title:        title,
		Description:  "A post about " + title,
		Content:      "Content of " + title,
		Slug:         slug,
		CategorySlug: categorySlug,
		Status:       models.PostStatusPublished,
	})
	if err != nil {
		t.Fatalf("Failed to create post %s: %v", slug, err)
	}
	return post
}

func (e *testEnv) record(t *testing.T, ref models.EntityRef) *models.AnalyticsRecord {
	t.Helper()
	record, err := e.analytics.GetOrCreate(context.Background(), ref)
	if err != nil {
		t.Fatalf("Failed to read analytics for %s: %v", ref, err)
	}
	return record
}

// cached reports whether key is currently served by the result cache
func (e *testEnv) cached(key string) bool {
	var raw any
	return e.results.Get(context.Background(), key, &raw)
}

func postDetailKey(slug string) string {
	return cachekey.Derive(cachekey.PostDetail, cachekey.Params(cachekey.ParamSlug, slug))
}

func postCommentsKey(slug, page string) string {
	return cachekey.Derive(cachekey.PostComments, cachekey.Params(cachekey.ParamSlug, slug, cachekey.ParamPage, page))
}

func commentRepliesKey(commentID, page string) string {
	return cachekey.Derive(cachekey.CommentReplies, cachekey.Params(cachekey.ParamCommentID, commentID, cachekey.ParamPage, page))
}

var errBackendDown = errors.New("backend down")

// brokenBackend fails every operation, like an unreachable Redis
type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) ([]byte, error) { return nil, errBackendDown }
func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errBackendDown
}
func (brokenBackend) Delete(context.Context, ...string) error { return errBackendDown }
func (brokenBackend) SAdd(context.Context, string, string, time.Duration) error {
	return errBackendDown
}
func (brokenBackend) SMembers(context.Context, string) ([]string, error) { return nil, errBackendDown }
func (brokenBackend) SRem(context.Context, string, ...string) error      { return errBackendDown }
func (brokenBackend) IncrBy(context.Context, string, int64) (int64, error) {
	return 0, errBackendDown
}
func (brokenBackend) TakeInt(context.Context, string) (int64, error) { return 0, errBackendDown }
func (brokenBackend) Ping(context.Context) error                     { return errBackendDown }
func (brokenBackend) Close() error                                   { return nil }

// unindexedBackend stores entries but cannot grow scope indexes
type unindexedBackend struct {
	*cache.MemoryBackend
}

func (unindexedBackend) SAdd(context.Context, string, string, time.Duration) error {
	return errBackendDown
}
