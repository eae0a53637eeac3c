package models

import "time"

// Post status values
const (
	PostStatusDraft     = "draft"
	PostStatusPublished = "published"
)

// Category groups posts; categories may be nested one level under a parent
type Category struct {
	ID          string    `json:"id"`
	ParentID    *string   `json:"parent_id,omitempty"`
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Slug        string    `json:"slug"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Post is a blog article
type Post struct {
	ID           string    `json:"id"`
	Author       string    `json:"author"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Content      string    `json:"content,omitempty"`
	Keywords     string    `json:"keywords"`
	Slug         string    `json:"slug"`
	CategoryID   string    `json:"category_id"`
	CategorySlug string    `json:"category_slug"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PostDetail is the cached payload of the post detail endpoint.
// Analytics is the snapshot taken when the entry was filled.
type PostDetail struct {
	Post
	Analytics *AnalyticsRecord `json:"analytics,omitempty"`
}

// Comment on a post. ParentID is set for replies.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsReply reports whether the comment answers another comment
func (c *Comment) IsReply() bool {
	return c.ParentID != nil && *c.ParentID != ""
}

// Page is a cached page of rows
type Page[T any] struct {
	Items   []T  `json:"items"`
	Page    int  `json:"page"`
	HasNext bool `json:"has_next"`
}
