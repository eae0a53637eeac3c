package cachekey

import (
	"net/url"
	"testing"
)

func TestDerive_PostListLayout(t *testing.T) {
	params := Params(
		ParamPage, "2",
		ParamCategory, "tech",
		ParamSearch, "go",
		ParamSorting, "newest",
		ParamAuthor, "ana",
		ParamOrdering, "az",
	)

	got := Derive(PostList, params)
	want := "post_list:go:newest:az:ana:tech:2"
	if got != want {
		t.Errorf("Derive() = %q, want %q", got, want)
	}
}

func TestDerive_Deterministic(t *testing.T) {
	a := url.Values{}
	a.Add(ParamCategory, "b")
	a.Add(ParamCategory, "a")
	a.Set(ParamSearch, "  hello ")

	b := url.Values{}
	b.Set(ParamSearch, "hello")
	b.Add(ParamCategory, "a")
	b.Add(ParamCategory, "b")
	b.Add(ParamCategory, "a")

	if Derive(PostList, a) != Derive(PostList, b) {
		t.Errorf("same logical query produced different keys: %q vs %q", Derive(PostList, a), Derive(PostList, b))
	}
}

func TestDerive_AbsentEqualsEmpty(t *testing.T) {
	absent := Derive(PostList, url.Values{})
	empty := Derive(PostList, Params(ParamSearch, "", ParamAuthor, "   "))
	if absent != empty {
		t.Errorf("absent and empty params should collide: %q vs %q", absent, empty)
	}
	if absent != "post_list::::::1" {
		t.Errorf("unexpected placeholder key %q", absent)
	}
}

func TestDerive_PageDefaultsToOne(t *testing.T) {
	if Derive(PostComments, Params(ParamSlug, "x")) != Derive(PostComments, Params(ParamSlug, "x", ParamPage, "1")) {
		t.Error("missing page should be the same key as page 1")
	}
}

func TestDerive_Injective(t *testing.T) {
	// Pairs that would collide under naive concatenation
	cases := [][2]url.Values{
		{Params(ParamSearch, "a:b"), Params(ParamSearch, "a", ParamSorting, "b")},
		{Params(ParamCategory, "a,b"), Params(ParamCategory, "a", ParamCategory, "b")},
		{Params(ParamSlug, "post:2"), Params(ParamSlug, "post", ParamPage, "2")},
	}

	for _, c := range cases {
		ns := PostList
		if c[0].Has(ParamSlug) {
			ns = PostComments
		}
		k1, k2 := Derive(ns, c[0]), Derive(ns, c[1])
		if k1 == k2 {
			t.Errorf("distinct queries collided on %q", k1)
		}
	}
}

func TestDerive_IgnoresUnknownParams(t *testing.T) {
	base := Params(ParamSlug, "hello")
	noisy := Params(ParamSlug, "hello", "utm_source", "newsletter")
	if Derive(PostDetail, base) != Derive(PostDetail, noisy) {
		t.Error("unknown params must not change the key")
	}
	if got := Derive(PostDetail, base); got != "post_detail:hello" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestDerive_Namespaces(t *testing.T) {
	tests := []struct {
		ns     Namespace
		params url.Values
		want   string
	}{
		{CategoryList, Params(ParamParentSlug, "science"), "category_list:1::::science"},
		{CategoryPosts, Params(ParamSlug, "science", ParamPage, "3"), "category_posts:science:3"},
		{CommentReplies, Params(ParamCommentID, "c1"), "comment_replies:c1:1"},
	}
	for _, tt := range tests {
		if got := Derive(tt.ns, tt.params); got != tt.want {
			t.Errorf("Derive(%s) = %q, want %q", tt.ns, got, tt.want)
		}
	}
}

func TestScope(t *testing.T) {
	s := PostCommentsScope("my-post")
	if s.String() != "post-comments:my-post" {
		t.Errorf("unexpected scope name %q", s.String())
	}
	if s.IndexKey() != "post_comments_cache_keys:my-post" {
		t.Errorf("unexpected index key %q", s.IndexKey())
	}

	r := CommentRepliesScope("42")
	if r.IndexKey() != "comment_replies_cache_keys:42" {
		t.Errorf("unexpected index key %q", r.IndexKey())
	}
}

func TestValue_MatchesKeySegment(t *testing.T) {
	params := url.Values{
		ParamPage:     {"", " 2 "},
		ParamSearch:   {"  ", "Alpha", "Beta"},
		ParamCategory: {"", "go", " rust "},
	}

	if got := Value(params, ParamPage); got != "2" {
		t.Errorf("Expected page 2, got %q", got)
	}
	if got := Value(params, ParamSearch); got != "Alpha" {
		t.Errorf("Expected search Alpha, got %q", got)
	}
	if got := Value(params, ParamAuthor); got != "" {
		t.Errorf("Expected an absent author to be empty, got %q", got)
	}
	if got := Values(params, ParamCategory); len(got) != 2 || got[0] != "go" || got[1] != "rust" {
		t.Errorf("Expected [go rust], got %v", got)
	}

	// the parsed value and the key agree on the same request
	if Derive(PostList, params) != Derive(PostList, Params(ParamPage, "2", ParamSearch, "Alpha", ParamCategory, "go", ParamCategory, "rust")) {
		t.Error("Expected blank repeats to key like their first non-blank value")
	}
}
