package handlers

import "github.com/gofiber/fiber/v2"

// BlogHandlers groups the handlers mounted under /api/blog
type BlogHandlers struct {
	Posts      *PostHandler
	Categories *CategoryHandler
	Comments   *CommentHandler
	History    *HistoryHandler // nil when the analytics archive is disabled
}

// RegisterBlogRoutes mounts the blog API on router. writeLimit guards every
// route that mutates state.
func RegisterBlogRoutes(router fiber.Router, h BlogHandlers, writeLimit fiber.Handler) {
	router.Get("/posts", h.Posts.List)
	router.Get("/post", h.Posts.Get)
	router.Get("/post/analytics", h.Posts.Analytics)
	if h.History != nil {
		router.Get("/post/analytics/history", h.History.Post)
	}
	router.Post("/post/increment_click", writeLimit, h.Posts.IncrementClick)
	router.Post("/post/like", writeLimit, h.Posts.Like)
	router.Delete("/post/like", writeLimit, h.Posts.Unlike)
	router.Post("/post/share", writeLimit, h.Posts.Share)

	router.Get("/categories", h.Categories.List)
	router.Get("/category/posts", h.Categories.Posts)
	router.Post("/category/increment_click", writeLimit, h.Categories.IncrementClick)

	router.Get("/post/comments", h.Comments.List)
	router.Post("/post/comment", writeLimit, h.Comments.Create)
	router.Put("/post/comment", writeLimit, h.Comments.Edit)
	router.Delete("/post/comment", writeLimit, h.Comments.Delete)
	router.Get("/post/comment/replies", h.Comments.Replies)
	router.Post("/post/comment/reply", writeLimit, h.Comments.Reply)
}
