package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"inkwell/internal/cache"
	"inkwell/internal/database"
)

// Pinger is a dependency whose liveness is reported by the health check
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db      *database.DB
	backend cache.Backend
	archive Pinger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, backend cache.Backend) *HealthHandler {
	return &HealthHandler{db: db, backend: backend}
}

// WithArchive also reports the analytics archive
func (h *HealthHandler) WithArchive(archive Pinger) *HealthHandler {
	h.archive = archive
	return h
}

// Handle responds with server health status. A cache outage only degrades
// the service since reads fall back to the database.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := fiber.StatusOK

	dbStatus := "up"
	if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "down"
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	}

	cacheStatus := "up"
	if err := h.backend.Ping(ctx); err != nil {
		cacheStatus = "down"
		if code == fiber.StatusOK {
			status = "degraded"
		}
	}

	response := fiber.Map{
		"database":  dbStatus,
		"cache":     cacheStatus,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if h.archive != nil {
		response["archive"] = "up"
		if err := h.archive.Ping(ctx); err != nil {
			response["archive"] = "down"
			if code == fiber.StatusOK {
				status = "degraded"
			}
		}
	}

	response["status"] = status
	return c.Status(code).JSON(response)
}
