package services

import (
	"context"
	"net/url"
	"testing"
	"time"

	"inkwell/internal/apperr"
	"inkwell/internal/cache"
	"inkwell/internal/cachekey"
	"inkwell/internal/models"
)

func TestComments_ReplyScenario(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategory(t, "go", "")
	post := env.seedPost(t, "hello", "Hello", "go")
	ctx := context.Background()

	// warm the empty first page
	page, err := env.comments.ListComments(ctx, "hello", url.Values{})
	if err != nil {
		t.Fatalf("ListComments failed: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("Expected no comments, got %d", len(page.Items))
	}
	if !env.cached(postCommentsKey("hello", "1")) {
		t.Fatal("Expected the comment page to be cached")
	}

	comment, err := env.comments.Create(ctx, "hello", CommentInput{UserID: "bob", IPAddress: "10.0.0.1", Content: "Nice post"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if env.cached(postCommentsKey("hello", "1")) {
		t.Error("Expected the comment page to be evicted by a new comment")
	}
	if n := env.record(t, models.PostRef(post.ID)).Comments; n != 1 {
		t.Errorf("Expected 1 comment, got %d", n)
	}

	page, err = env.comments.ListComments(ctx, "hello", url.Values{})
	if err != nil {
		t.Fatalf("ListComments failed: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != comment.ID {
		t.Fatalf("Expected the new comment to be listed, got %+v", page.Items)
	}
	if _, err := env.comments.ListReplies(ctx, comment.ID, url.Values{}); err != nil {
		t.Fatalf("ListReplies failed: %v", err)
	}

	reply, err := env.comments.Reply(ctx, comment.ID, CommentInput{UserID: "carol", IPAddress: "10.0.0.2", Content: "Agreed"})
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if !reply.IsReply() || *reply.ParentID != comment.ID {
		t.Errorf("Expected reply to point at %s, got %+v", comment.ID, reply.ParentID)
	}

	// replies do not count as comments
	if n := env.record(t, models.PostRef(post.ID)).Comments; n != 1 {
		t.Errorf("Expected comments to stay at 1 after a reply, got %d", n)
	}
	if env.cached(postCommentsKey("hello", "1")) {
		t.Error("Expected the comment page to be evicted by a reply")
	}
	if env.cached(commentRepliesKey(comment.ID, "1")) {
		t.Error("Expected the reply page to be evicted by a reply")
	}

	replies, err := env.comments.ListReplies(ctx, comment.ID, url.Values{})
	if err != nil {
		t.Fatalf("ListReplies failed: %v", err)
	}
	if len(replies.Items) != 1 || replies.Items[0].ID != reply.ID {
		t.Errorf("Expected the reply to be listed, got %+v", replies.Items)
	}

	events, err := env.engagement.Events(ctx, post.ID, models.InteractionComment)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("Expected a comment event for the comment and the reply, got %d", len(events))
	}
}

func TestComments_DeleteInvalidatesEveryPage(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategory(t, "go", "")
	post := env.seedPost(t, "hello", "Hello", "go")
	ctx := context.Background()

	var ids []string
	for _, content := range []string{"one", "two", "three"} {
		c, err := env.comments.Create(ctx, "hello", CommentInput{UserID: "bob", Content: content})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, c.ID)
	}

	// fill two pages of comments
	for _, p := range []string{"1", "2"} {
		if _, err := env.comments.ListComments(ctx, "hello", url.Values{"p": {p}}); err != nil {
			t.Fatalf("ListComments p=%s failed: %v", p, err)
		}
	}
	keys, err := env.registry.Keys(ctx, cachekey.PostCommentsScope("hello"))
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Expected 2 registered keys, got %v", keys)
	}

	if err := env.comments.Delete(ctx, ids[0], "mallory"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected another user's delete to be not found, got %v", err)
	}
	if err := env.comments.Delete(ctx, ids[0], "bob"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	for _, key := range keys {
		if env.cached(key) {
			t.Errorf("Expected %s to be evicted", key)
		}
	}
	if n := env.record(t, models.PostRef(post.ID)).Comments; n != 2 {
		t.Errorf("Expected comments to be recounted to 2, got %d", n)
	}
	if _, err := env.comments.Get(ctx, ids[0]); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected deleted comment to be gone, got %v", err)
	}
}

func TestComments_DeleteRemovesReplies(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategory(t, "go", "")
	env.seedPost(t, "hello", "Hello", "go")
	ctx := context.Background()

	comment, err := env.comments.Create(ctx, "hello", CommentInput{UserID: "bob", Content: "top"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	reply, err := env.comments.Reply(ctx, comment.ID, CommentInput{UserID: "carol", Content: "under"})
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if _, err := env.comments.ListReplies(ctx, comment.ID, url.Values{}); err != nil {
		t.Fatalf("ListReplies failed: %v", err)
	}

	if err := env.comments.Delete(ctx, comment.ID, "bob"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := env.comments.Get(ctx, reply.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected the reply to be deleted with its parent, got %v", err)
	}
	if env.cached(commentRepliesKey(comment.ID, "1")) {
		t.Error("Expected the deleted comment's reply page to be evicted")
	}
}

func TestComments_Edit(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategory(t, "go", "")
	env.seedPost(t, "hello", "Hello", "go")
	ctx := context.Background()

	comment, err := env.comments.Create(ctx, "hello", CommentInput{UserID: "bob", Content: "first draft"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := env.comments.ListComments(ctx, "hello", url.Values{}); err != nil {
		t.Fatalf("ListComments failed: %v", err)
	}

	if _, err := env.comments.Edit(ctx, comment.ID, "bob", "  "); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Expected validation error for blank content, got %v", err)
	}
	if _, err := env.comments.Edit(ctx, comment.ID, "bob", "final"); err != nil {
		t.Fatalf("Edit failed: %v", err)
	}

	page, err := env.comments.ListComments(ctx, "hello", url.Values{})
	if err != nil {
		t.Fatalf("ListComments failed: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Content != "final" {
		t.Errorf("Expected the edited comment to be served, got %+v", page.Items)
	}
}

func TestComments_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategory(t, "go", "")
	env.seedPost(t, "hello", "Hello", "go")
	ctx := context.Background()

	if _, err := env.comments.Create(ctx, "hello", CommentInput{Content: "anonymous"}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Expected validation error for anonymous comment, got %v", err)
	}
	if _, err := env.comments.Create(ctx, "missing", CommentInput{UserID: "bob", Content: "hi"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected not found for a missing post, got %v", err)
	}
	if _, err := env.comments.Reply(ctx, "missing", CommentInput{UserID: "bob", Content: "hi"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected not found for a missing parent, got %v", err)
	}
	if _, err := env.comments.ListComments(ctx, "missing", url.Values{}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected not found listing a missing post, got %v", err)
	}
}

func TestComments_WritesSurviveBrokenCache(t *testing.T) {
	env := newTestEnvWithBackend(t, brokenBackend{})
	env.seedCategory(t, "go", "")
	post := env.seedPost(t, "hello", "Hello", "go")
	ctx := context.Background()

	comment, err := env.comments.Create(ctx, "hello", CommentInput{UserID: "bob", IPAddress: "10.0.0.1", Content: "Nice post"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if n := env.record(t, models.PostRef(post.ID)).Comments; n != 1 {
		t.Errorf("Expected 1 comment after create, got %d", n)
	}

	edited, err := env.comments.Edit(ctx, comment.ID, "bob", "Nicer post")
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if edited.Content != "Nicer post" {
		t.Errorf("Expected edited content, got %q", edited.Content)
	}
	if n := env.record(t, models.PostRef(post.ID)).Comments; n != 1 {
		t.Errorf("Expected edit to keep 1 comment, got %d", n)
	}

	if err := env.comments.Delete(ctx, comment.ID, "bob"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n := env.record(t, models.PostRef(post.ID)).Comments; n != 0 {
		t.Errorf("Expected 0 comments after delete, got %d", n)
	}
}

func TestComments_DraftsAreNotCommentable(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategory(t, "go", "")
	ctx := context.Background()

	if _, err := env.posts.Create(ctx, PostInput{
		Author: "alice", Title: "Draft", Content: "wip", Slug: "draft", CategorySlug: "go",
		Status: models.PostStatusDraft,
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := env.comments.Create(ctx, "draft", CommentInput{UserID: "bob", Content: "First"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected comment on a draft to be not found, got %v", err)
	}
	if _, err := env.comments.ListComments(ctx, "draft", url.Values{}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected draft comments to be not found, got %v", err)
	}
}

func TestComments_UnindexedPageIsNotKept(t *testing.T) {
	env := newTestEnvWithBackend(t, unindexedBackend{cache.NewMemoryBackend(time.Minute)})
	env.seedCategory(t, "go", "")
	env.seedPost(t, "hello", "Hello", "go")
	ctx := context.Background()

	page, err := env.comments.ListComments(ctx, "hello", url.Values{})
	if err != nil {
		t.Fatalf("ListComments failed: %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("Expected no comments, got %d", len(page.Items))
	}
	if env.cached(postCommentsKey("hello", "1")) {
		t.Error("Expected a page that could not be indexed to be evicted")
	}

	// a later comment must show up even though no index points at the page
	if _, err := env.comments.Create(ctx, "hello", CommentInput{UserID: "bob", Content: "Nice post"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	page, err = env.comments.ListComments(ctx, "hello", url.Values{})
	if err != nil {
		t.Fatalf("ListComments failed: %v", err)
	}
	if len(page.Items) != 1 {
		t.Errorf("Expected the new comment to be listed, got %d items", len(page.Items))
	}
}
