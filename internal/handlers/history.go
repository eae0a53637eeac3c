package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"inkwell/internal/models"
	"inkwell/internal/services"
)

// SnapshotHistory reads archived daily analytics snapshots
type SnapshotHistory interface {
	History(ctx context.Context, ref models.EntityRef, limit int64) ([]models.AnalyticsSnapshot, error)
}

type historyRequest struct {
	Slug string `query:"slug" validate:"required,max=255"`
	Days int64  `query:"days" validate:"omitempty,min=1,max=366"`
}

// HistoryHandler serves the daily analytics archive of a post
type HistoryHandler struct {
	posts   *services.PostService
	history SnapshotHistory
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(posts *services.PostService, history SnapshotHistory) *HistoryHandler {
	return &HistoryHandler{posts: posts, history: history}
}

// Post returns the daily snapshots of a post, newest first
// GET /api/blog/post/analytics/history?slug=&days=
func (h *HistoryHandler) Post(c *fiber.Ctx) error {
	var req historyRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if req.Days == 0 {
		req.Days = 30
	}

	post, err := h.posts.GetBySlug(c.UserContext(), req.Slug, false)
	if err != nil {
		return respondError(c, err)
	}
	snapshots, err := h.history.History(c.UserContext(), models.PostRef(post.ID), req.Days)
	if err != nil {
		return respondError(c, err)
	}
	if snapshots == nil {
		snapshots = []models.AnalyticsSnapshot{}
	}

	return c.JSON(fiber.Map{
		"slug":      post.Slug,
		"snapshots": snapshots,
	})
}
