// Package cachekey derives canonical Result Cache keys from query parameters
// and names the invalidation scopes that group them.
package cachekey

import (
	"net/url"
	"slices"
	"strings"
)

// Namespace is the first segment of every cache key
type Namespace string

const (
	PostList       Namespace = "post_list"
	PostDetail     Namespace = "post_detail"
	CategoryList   Namespace = "category_list"
	CategoryPosts  Namespace = "category_posts"
	PostComments   Namespace = "post_comments"
	CommentReplies Namespace = "comment_replies"
)

const separator = ":"

// field describes one positional segment of a key
type field struct {
	name     string
	multi    bool   // set-valued: deduplicated and sorted
	fallback string // value used when the parameter is absent or blank
}

// Param names understood by the deriver
const (
	ParamSearch     = "search"
	ParamSorting    = "sorting"
	ParamOrdering   = "ordering"
	ParamAuthor     = "author"
	ParamCategory   = "category"
	ParamPage       = "p"
	ParamSlug       = "slug"
	ParamParentSlug = "parent_slug"
	ParamCommentID  = "comment_id"
)

var page = field{name: ParamPage, fallback: "1"}

// layouts fixes the segment order of each namespace
var layouts = map[Namespace][]field{
	PostList: {
		{name: ParamSearch},
		{name: ParamSorting},
		{name: ParamOrdering},
		{name: ParamAuthor},
		{name: ParamCategory, multi: true},
		page,
	},
	PostDetail: {
		{name: ParamSlug},
	},
	CategoryList: {
		page,
		{name: ParamOrdering},
		{name: ParamSorting},
		{name: ParamSearch},
		{name: ParamParentSlug},
	},
	CategoryPosts: {
		{name: ParamSlug},
		page,
	},
	PostComments: {
		{name: ParamSlug},
		page,
	},
	CommentReplies: {
		{name: ParamCommentID},
		page,
	},
}

// Derive maps a query's parameters onto its canonical key.
// Segment order comes from the namespace layout, never from params.
// Parameters the namespace does not know about are ignored.
func Derive(ns Namespace, params url.Values) string {
	fields := layouts[ns]

	var b strings.Builder
	b.WriteString(string(ns))
	for _, f := range fields {
		b.WriteString(separator)
		b.WriteString(normalize(f, params[f.name]))
	}
	return b.String()
}

// Params builds url.Values from alternating name/value pairs
func Params(pairs ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		v.Add(pairs[i], pairs[i+1])
	}
	return v
}

// Value returns the first non-blank value of name, trimmed. It is the value
// Derive keys a single-valued parameter on, so queries must read it the same way.
func Value(params url.Values, name string) string {
	for _, r := range params[name] {
		if r = strings.TrimSpace(r); r != "" {
			return r
		}
	}
	return ""
}

// Values returns the trimmed non-blank values of name in request order
func Values(params url.Values, name string) []string {
	return nonBlank(params[name])
}

func nonBlank(raw []string) []string {
	var values []string
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			values = append(values, r)
		}
	}
	return values
}

func normalize(f field, raw []string) string {
	values := nonBlank(raw)

	if len(values) == 0 {
		return url.QueryEscape(f.fallback)
	}

	if !f.multi {
		// Single-valued fields keep the first occurrence
		return url.QueryEscape(values[0])
	}

	slices.Sort(values)
	values = slices.Compact(values)
	for i := range values {
		values[i] = url.QueryEscape(values[i])
	}
	return strings.Join(values, ",")
}
