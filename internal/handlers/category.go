package handlers

import (
	"github.com/gofiber/fiber/v2"

	"inkwell/internal/services"
)

// CategoryHandler serves the category read paths
type CategoryHandler struct {
	categories *services.CategoryService
}

// NewCategoryHandler creates a new category handler
func NewCategoryHandler(categories *services.CategoryService) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// List returns a page of categories
// GET /api/blog/categories
func (h *CategoryHandler) List(c *fiber.Ctx) error {
	page, err := h.categories.List(c.UserContext(), queryValues(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// Posts returns a page of a category's published posts
// GET /api/blog/category/posts?slug=
func (h *CategoryHandler) Posts(c *fiber.Ctx) error {
	params := queryValues(c)
	page, err := h.categories.Posts(c.UserContext(), params.Get("slug"), params)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// IncrementClick counts a click on a category
// POST /api/blog/category/increment_click
func (h *CategoryHandler) IncrementClick(c *fiber.Ctx) error {
	var req slugRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	record, err := h.categories.IncrementClick(c.UserContext(), req.Slug)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"clicks":             record.Clicks,
		"click_through_rate": record.ClickThroughRate,
	})
}
