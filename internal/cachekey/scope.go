package cachekey

// ScopeKind is the kind of mutable sub-resource a scope tracks
type ScopeKind string

const (
	ScopePostComments   ScopeKind = "post-comments"
	ScopeCommentReplies ScopeKind = "comment-replies"
)

var indexPrefixes = map[ScopeKind]string{
	ScopePostComments:   "post_comments_cache_keys",
	ScopeCommentReplies: "comment_replies_cache_keys",
}

// Scope groups cache entries that must be invalidated together
type Scope struct {
	Kind ScopeKind
	ID   string
}

// PostCommentsScope covers every cached page of a post's top-level comments
func PostCommentsScope(postSlug string) Scope {
	return Scope{Kind: ScopePostComments, ID: postSlug}
}

// CommentRepliesScope covers every cached page of a comment's replies
func CommentRepliesScope(commentID string) Scope {
	return Scope{Kind: ScopeCommentReplies, ID: commentID}
}

// String returns the logical scope name, e.g. post-comments:my-post
func (s Scope) String() string {
	return string(s.Kind) + separator + s.ID
}

// IndexKey is the cache key under which the scope's member keys are stored
func (s Scope) IndexKey() string {
	return indexPrefixes[s.Kind] + separator + s.ID
}
