package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"voltdesk/internal/database"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db *database.DB
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	if err := h.db.Ping(); err != nil {
		status = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
