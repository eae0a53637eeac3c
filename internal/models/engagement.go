package models

import (
	"strings"
	"time"
)

// InteractionKind is the type of an engagement event
type InteractionKind string

const (
	InteractionView    InteractionKind = "view"
	InteractionComment InteractionKind = "comment"
	InteractionLike    InteractionKind = "like"
	InteractionShare   InteractionKind = "share"
)

// VisitorIdentity identifies who performed a view. UserID is empty for anonymous visitors.
type VisitorIdentity struct {
	IPAddress string
	UserID    string
}

// Anonymous reports whether no authenticated user is attached
func (v VisitorIdentity) Anonymous() bool {
	return v.UserID == ""
}

// UniqueView is the uniqueness record for (post, ip, user)
type UniqueView struct {
	PostID    string    `json:"post_id"`
	IPAddress string    `json:"ip_address"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// EngagementEvent is an append-only interaction log entry
type EngagementEvent struct {
	ID        string          `json:"id"`
	PostID    string          `json:"post_id"`
	UserID    string          `json:"user_id,omitempty"`
	Kind      InteractionKind `json:"kind"`
	CommentID *string         `json:"comment_id,omitempty"`
	IPAddress string          `json:"ip_address"`
	CreatedAt time.Time       `json:"created_at"`
}

// Outcome of an insert-if-absent operation
type Outcome int

const (
	Created Outcome = iota + 1
	AlreadyExists
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// ViewResult reports whether a view was counted as unique
type ViewResult struct {
	Counted bool    `json:"counted"`
	Outcome Outcome `json:"-"`
}

// SharePlatform is where a post was shared
type SharePlatform string

const (
	ShareFacebook SharePlatform = "facebook"
	ShareTwitter  SharePlatform = "twitter"
	ShareLinkedIn SharePlatform = "linkedin"
	ShareWhatsApp SharePlatform = "whatsapp"
	ShareEmail    SharePlatform = "email"
	ShareOther    SharePlatform = "other"
)

// SharePlatforms lists the accepted platforms in display order
var SharePlatforms = []SharePlatform{
	ShareFacebook, ShareTwitter, ShareLinkedIn, ShareWhatsApp, ShareEmail, ShareOther,
}

// ParseSharePlatform normalizes a platform name; empty defaults to "other"
func ParseSharePlatform(s string) (SharePlatform, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ShareOther, true
	}
	for _, p := range SharePlatforms {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}
