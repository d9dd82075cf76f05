package handlers

import (
	"time"

	"contextd/internal/store"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	store *store.Store
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(st *store.Store) *HealthHandler {
	return &HealthHandler{store: st}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	stats := h.store.Stats()
	return c.JSON(fiber.Map{
		"status":        "healthy",
		"conversations": stats.TotalConversations,
		"messages":      stats.TotalMessages,
		"timestamp":     time.Now().Format(time.RFC3339),
	})
}
