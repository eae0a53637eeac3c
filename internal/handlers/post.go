package handlers

import (
	"github.com/gofiber/fiber/v2"

	"inkwell/internal/services"
)

type slugRequest struct {
	Slug string `json:"slug" query:"slug" validate:"required,max=255"`
}

type shareRequest struct {
	Slug     string `json:"slug" validate:"required,max=255"`
	Platform string `json:"platform" validate:"max=32"`
}

// PostHandler serves the post read paths and post engagement writes
type PostHandler struct {
	posts      *services.PostService
	engagement *services.EngagementService
}

// NewPostHandler creates a new post handler
func NewPostHandler(posts *services.PostService, engagement *services.EngagementService) *PostHandler {
	return &PostHandler{
		posts:      posts,
		engagement: engagement,
	}
}

// List returns a page of published posts
// GET /api/blog/posts
func (h *PostHandler) List(c *fiber.Ctx) error {
	page, err := h.posts.List(c.UserContext(), queryValues(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// Get returns a post and registers the caller's view
// GET /api/blog/post?slug=
func (h *PostHandler) Get(c *fiber.Ctx) error {
	var req slugRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	detail, view, err := h.posts.Get(c.UserContext(), req.Slug, visitor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"post": detail,
		"view": view,
	})
}

// IncrementClick counts a click on a post
// POST /api/blog/post/increment_click
func (h *PostHandler) IncrementClick(c *fiber.Ctx) error {
	var req slugRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	record, err := h.posts.IncrementClick(c.UserContext(), req.Slug)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"clicks":             record.Clicks,
		"click_through_rate": record.ClickThroughRate,
	})
}

// Analytics returns a post's counters
// GET /api/blog/post/analytics?slug=
func (h *PostHandler) Analytics(c *fiber.Ctx) error {
	var req slugRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	record, pending, err := h.posts.Analytics(c.UserContext(), req.Slug)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"analytics":           record,
		"pending_impressions": pending,
	})
}

// Like records the caller's like
// POST /api/blog/post/like
func (h *PostHandler) Like(c *fiber.Ctx) error {
	var req slugRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	post, err := h.posts.GetBySlug(c.UserContext(), req.Slug, true)
	if err != nil {
		return respondError(c, err)
	}
	record, err := h.engagement.Like(c.UserContext(), post, userID(c), c.IP())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"likes": record.Likes,
	})
}

// Unlike removes the caller's like
// DELETE /api/blog/post/like?slug=
func (h *PostHandler) Unlike(c *fiber.Ctx) error {
	var req slugRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	post, err := h.posts.GetBySlug(c.UserContext(), req.Slug, true)
	if err != nil {
		return respondError(c, err)
	}
	record, err := h.engagement.Unlike(c.UserContext(), post, userID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"likes": record.Likes,
	})
}

// Share records a share on a platform
// POST /api/blog/post/share
func (h *PostHandler) Share(c *fiber.Ctx) error {
	var req shareRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	post, err := h.posts.GetBySlug(c.UserContext(), req.Slug, true)
	if err != nil {
		return respondError(c, err)
	}
	record, err := h.engagement.Share(c.UserContext(), post, userID(c), c.IP(), req.Platform)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"shares": record.Shares,
	})
}
