package jobs

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"inkwell/internal/cache"
	"inkwell/internal/database"
	"inkwell/internal/models"
	"inkwell/internal/services"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func newTestMetrics() *services.Metrics {
	return services.NewMetrics(prometheus.NewRegistry())
}

func TestJobScheduler_Register(t *testing.T) {
	scheduler, err := NewJobScheduler(newTestMetrics())
	if err != nil {
		t.Fatalf("NewJobScheduler failed: %v", err)
	}
	defer scheduler.Stop()

	if err := scheduler.Register("bad", "every minute", &countingJob{}); err == nil {
		t.Error("Expected an invalid cron expression to be rejected")
	}
	if err := scheduler.Register("reconcile", "* * * * *", &countingJob{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := scheduler.Register("reconcile", "* * * * *", &countingJob{}); err == nil {
		t.Error("Expected a duplicate job name to be rejected")
	}
}

func TestJobScheduler_RunNow(t *testing.T) {
	scheduler, err := NewJobScheduler(newTestMetrics())
	if err != nil {
		t.Fatalf("NewJobScheduler failed: %v", err)
	}
	defer scheduler.Stop()

	ok := &countingJob{}
	failing := &countingJob{err: errors.New("boom")}
	if err := scheduler.Register("ok", "0 0 * * *", ok); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := scheduler.Register("failing", "0 0 * * *", failing); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := scheduler.RunNow("ok"); err != nil {
		t.Errorf("RunNow failed: %v", err)
	}
	if err := scheduler.RunNow("failing"); err == nil {
		t.Error("Expected the job error to be returned")
	}
	if err := scheduler.RunNow("missing"); err == nil {
		t.Error("Expected an unknown job to be reported")
	}
	if ok.runs.Load() != 1 || failing.runs.Load() != 1 {
		t.Errorf("Expected one run each, got %d and %d", ok.runs.Load(), failing.runs.Load())
	}
}

type reconcileEnv struct {
	db          *database.DB
	analytics   *services.AnalyticsService
	impressions *services.ImpressionService
	posts       *services.PostService
	categories  *services.CategoryService
	job         *ImpressionReconcileJob
}

func newReconcileEnv(t *testing.T) *reconcileEnv {
	t.Helper()

	db, err := database.New("sqlite://" + filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	metrics := newTestMetrics()
	backend := cache.NewMemoryBackend(time.Minute)
	results := cache.NewResultCache(backend)
	registry := cache.NewRegistry(backend, results)

	analytics := services.NewAnalyticsService(db, metrics)
	impressions := services.NewImpressionService(backend, metrics)
	invalidation := services.NewInvalidationService(registry, results, analytics)
	engagement := services.NewEngagementService(db, analytics, invalidation, metrics)
	return &reconcileEnv{
		db:          db,
		analytics:   analytics,
		impressions: impressions,
		posts:       services.NewPostService(db, results, impressions, analytics, engagement, invalidation, 10),
		categories:  services.NewCategoryService(db, results, impressions, analytics, 10),
		job:         NewImpressionReconcileJob(impressions, analytics, metrics, 1000),
	}
}

func (e *reconcileEnv) seed(t *testing.T) (*models.Category, *models.Post) {
	t.Helper()
	ctx := context.Background()

	category, err := e.categories.Create(ctx, services.CategoryInput{Name: "go", Title: "Go", Slug: "go"})
	if err != nil {
		t.Fatalf("Failed to create category: %v", err)
	}
	post, err := e.posts.Create(ctx, services.PostInput{
		Author:       "alice",
		Title:        "Hello",
		Description:  "A first post",
		Content:      "Hello, world",
		Slug:         "hello",
		CategorySlug: "go",
		Status:       models.PostStatusPublished,
	})
	if err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}
	return category, post
}

func TestImpressionReconcile_AppliesCounts(t *testing.T) {
	env := newReconcileEnv(t)
	ctx := context.Background()
	seededCategory, seededPost := env.seed(t)

	post := models.PostRef(seededPost.ID)
	category := models.CategoryRef(seededCategory.ID)
	for i := 0; i < 4; i++ {
		env.impressions.Bump(ctx, post)
	}
	env.impressions.Bump(ctx, category)
	if _, err := env.analytics.Increment(ctx, post, models.MetricClicks); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	result, err := env.job.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if result.Applied != 5 || result.Restored != 0 || result.Lost != 0 || result.Discarded != 0 {
		t.Errorf("Unexpected result %+v", result)
	}

	record, err := env.analytics.GetOrCreate(ctx, post)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if record.Impressions != 4 || record.ClickThroughRate != 0.25 {
		t.Errorf("Expected 4 impressions at ctr 0.25, got %d at %f", record.Impressions, record.ClickThroughRate)
	}
	if n, _ := env.impressions.Count(ctx, post); n != 0 {
		t.Errorf("Expected the ephemeral counter to be drained, got %d", n)
	}

	// nothing pending: a second run is a no-op
	result, err = env.job.Reconcile(ctx)
	if err != nil || result.Applied != 0 {
		t.Errorf("Expected an empty second run, got %+v, %v", result, err)
	}
}

func TestImpressionReconcile_DiscardsDeletedEntities(t *testing.T) {
	env := newReconcileEnv(t)
	ctx := context.Background()
	_, post := env.seed(t)

	if _, err := env.posts.List(ctx, url.Values{}); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if err := env.posts.Delete(ctx, "hello", "alice"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n, _ := env.impressions.Count(ctx, models.PostRef(post.ID)); n != 0 {
		t.Errorf("Expected the pending count to be dropped on delete, got %d", n)
	}

	// the cached page still lists the post and counts it again
	if _, err := env.posts.List(ctx, url.Values{}); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	result, err := env.job.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if result.Applied != 0 || result.Discarded != 1 {
		t.Errorf("Expected the late impression to be discarded, got %+v", result)
	}

	records, err := env.analytics.List(ctx, models.EntityPost)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no analytics row for the deleted post, got %+v", records)
	}
}

func TestImpressionReconcile_RestoresOnFailure(t *testing.T) {
	env := newReconcileEnv(t)
	ctx := context.Background()

	post := models.PostRef("post-1")
	for i := 0; i < 3; i++ {
		env.impressions.Bump(ctx, post)
	}
	env.db.Close()

	result, err := env.job.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if result.Applied != 0 || result.Restored != 3 {
		t.Errorf("Expected 3 restored impressions, got %+v", result)
	}
	if n, _ := env.impressions.Count(ctx, post); n != 3 {
		t.Errorf("Expected the count to be back on the ephemeral counter, got %d", n)
	}
}

func TestImpressionReconcile_CancelledRestoresRemaining(t *testing.T) {
	env := newReconcileEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	env.impressions.Bump(ctx, models.PostRef("a"))
	env.impressions.Bump(ctx, models.PostRef("b"))
	cancel()

	// Drain itself does not watch ctx on the memory backend
	result, _ := env.job.Reconcile(ctx)
	if result.Applied != 0 || result.Restored != 2 {
		t.Errorf("Expected both counts restored, got %+v", result)
	}
}

func TestAnalyticsSnapshot_MongoDB(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	mongoDB, err := database.NewMongoDB(uri)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	ctx := context.Background()
	defer mongoDB.Close(ctx)
	if err := mongoDB.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	env := newReconcileEnv(t)
	ref := models.PostRef("snapshot-" + time.Now().Format("150405.000000"))
	if _, err := env.analytics.IncrementBy(ctx, ref, models.MetricViews, 7); err != nil {
		t.Fatalf("IncrementBy failed: %v", err)
	}

	job := NewAnalyticsSnapshotJob(mongoDB, env.analytics)
	job.now = func() time.Time { return time.Date(2026, 3, 1, 0, 5, 0, 0, time.UTC) }

	// same day twice keeps one snapshot
	for i := 0; i < 2; i++ {
		if err := job.Run(ctx); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	}

	history, err := job.History(ctx, ref, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].Day != "2026-03-01" || history[0].Views != 7 {
		t.Errorf("Expected one snapshot with 7 views, got %+v", history)
	}
}
