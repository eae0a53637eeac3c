package handlers

import (
	"github.com/gofiber/fiber/v2"

	"inkwell/internal/services"
)

type createCommentRequest struct {
	Slug    string `json:"slug" validate:"required,max=255"`
	Content string `json:"content" validate:"required,max=5000"`
}

type replyRequest struct {
	CommentID string `json:"comment_id" validate:"required"`
	Content   string `json:"content" validate:"required,max=5000"`
}

type editCommentRequest struct {
	CommentID string `json:"comment_id" validate:"required"`
	Content   string `json:"content" validate:"required,max=5000"`
}

type commentIDRequest struct {
	CommentID string `query:"comment_id" validate:"required"`
}

// CommentHandler serves comment pages and comment writes
type CommentHandler struct {
	comments *services.CommentService
}

// NewCommentHandler creates a new comment handler
func NewCommentHandler(comments *services.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

// List returns a page of a post's comments
// GET /api/blog/post/comments?slug=
func (h *CommentHandler) List(c *fiber.Ctx) error {
	params := queryValues(c)
	page, err := h.comments.ListComments(c.UserContext(), params.Get("slug"), params)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// Replies returns a page of a comment's replies
// GET /api/blog/post/comment/replies?comment_id=
func (h *CommentHandler) Replies(c *fiber.Ctx) error {
	params := queryValues(c)
	page, err := h.comments.ListReplies(c.UserContext(), params.Get("comment_id"), params)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// Create adds a comment to a post
// POST /api/blog/post/comment
func (h *CommentHandler) Create(c *fiber.Ctx) error {
	var req createCommentRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	comment, err := h.comments.Create(c.UserContext(), req.Slug, services.CommentInput{
		UserID:    userID(c),
		IPAddress: c.IP(),
		Content:   req.Content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// Reply answers a comment
// POST /api/blog/post/comment/reply
func (h *CommentHandler) Reply(c *fiber.Ctx) error {
	var req replyRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	reply, err := h.comments.Reply(c.UserContext(), req.CommentID, services.CommentInput{
		UserID:    userID(c),
		IPAddress: c.IP(),
		Content:   req.Content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(reply)
}

// Edit changes the caller's comment
// PUT /api/blog/post/comment
func (h *CommentHandler) Edit(c *fiber.Ctx) error {
	var req editCommentRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	comment, err := h.comments.Edit(c.UserContext(), req.CommentID, userID(c), req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(comment)
}

// Delete removes the caller's comment and its replies
// DELETE /api/blog/post/comment?comment_id=
func (h *CommentHandler) Delete(c *fiber.Ctx) error {
	var req commentIDRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	if err := h.comments.Delete(c.UserContext(), req.CommentID, userID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Comment deleted",
	})
}
