package services

import (
	"context"
	"net/url"
	"testing"

	"inkwell/internal/apperr"
	"inkwell/internal/models"
)

func TestCategoryList(t *testing.T) {
	env := newTestEnv(t)
	golang := env.seedCategory(t, "go", "")
	rust := env.seedCategory(t, "rust", "")
	env.seedCategory(t, "concurrency", "go")
	ctx := context.Background()

	page, err := env.categories.List(ctx, url.Values{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].Slug != "go" || page.Items[1].Slug != "rust" {
		t.Fatalf("Expected top-level categories go, rust, got %+v", page.Items)
	}

	// second serve comes from the cache and still counts
	if _, err := env.categories.List(ctx, url.Values{}); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, c := range []*models.Category{golang, rust} {
		n, err := env.impressions.Count(ctx, models.CategoryRef(c.ID))
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if n != 2 {
			t.Errorf("Category %s: expected 2 impressions, got %d", c.Slug, n)
		}
	}

	children, err := env.categories.List(ctx, url.Values{"parent_slug": {"go"}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(children.Items) != 1 || children.Items[0].Slug != "concurrency" {
		t.Errorf("Expected child category concurrency, got %+v", children.Items)
	}

	za, err := env.categories.List(ctx, url.Values{"ordering": {"za"}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if za.Items[0].Slug != "rust" {
		t.Errorf("Expected rust first in za ordering, got %s", za.Items[0].Slug)
	}

	if _, err := env.categories.List(ctx, url.Values{"sorting": {"loudest"}}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Expected validation error for unknown sorting, got %v", err)
	}
}

func TestCategoryList_BlankRepeatsReadLikeTheKey(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategory(t, "go", "")
	env.seedCategory(t, "rust", "")
	env.seedCategory(t, "concurrency", "go")
	ctx := context.Background()

	for _, params := range []url.Values{
		{"parent_slug": {"", "go"}},
		{"parent_slug": {"go"}},
	} {
		page, err := env.categories.List(ctx, params)
		if err != nil {
			t.Fatalf("List(%v) failed: %v", params, err)
		}
		if len(page.Items) != 1 || page.Items[0].Slug != "concurrency" {
			t.Errorf("List(%v): expected the children of go, got %+v", params, page.Items)
		}
	}
}

func TestCategoryPosts(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategory(t, "go", "")
	env.seedCategory(t, "rust", "")
	post := env.seedPost(t, "hello", "Hello", "go")
	env.seedPost(t, "borrowing", "Borrowing", "rust")
	ctx := context.Background()

	page, err := env.categories.Posts(ctx, "go", url.Values{})
	if err != nil {
		t.Fatalf("Posts failed: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != post.ID {
		t.Fatalf("Expected only the go post, got %+v", page.Items)
	}
	if n, _ := env.impressions.Count(ctx, models.PostRef(post.ID)); n != 1 {
		t.Errorf("Expected 1 impression, got %d", n)
	}

	if _, err := env.categories.Posts(ctx, "cobol", url.Values{}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected not found for a missing category, got %v", err)
	}
}

func TestCategoryCreate(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategory(t, "go", "")
	ctx := context.Background()

	tests := []struct {
		name string
		in   CategoryInput
		kind apperr.Kind
	}{
		{"duplicate slug", CategoryInput{Name: "Go", Slug: "go"}, apperr.KindConflict},
		{"missing parent", CategoryInput{Name: "Child", Slug: "child", ParentSlug: "nope"}, apperr.KindNotFound},
		{"missing name", CategoryInput{Slug: "nameless"}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.categories.Create(ctx, tt.in); !apperr.Is(err, tt.kind) {
				t.Errorf("Expected %s error, got %v", tt.kind, err)
			}
		})
	}
}

func TestCategoryIncrementClick(t *testing.T) {
	env := newTestEnv(t)
	category := env.seedCategory(t, "go", "")
	ctx := context.Background()

	if _, err := env.analytics.IncrementBy(ctx, models.CategoryRef(category.ID), models.MetricImpressions, 4); err != nil {
		t.Fatalf("IncrementBy failed: %v", err)
	}
	record, err := env.categories.IncrementClick(ctx, "go")
	if err != nil {
		t.Fatalf("IncrementClick failed: %v", err)
	}
	if record.ClickThroughRate != 0.25 {
		t.Errorf("Expected ctr 0.25, got %f", record.ClickThroughRate)
	}
}
