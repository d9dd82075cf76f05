package handlers

import (
	"errors"
	"log"

	"contextd/internal/models"
	"contextd/internal/store"

	"github.com/gofiber/fiber/v2"
)

// ConversationHandler handles conversation CRUD requests
type ConversationHandler struct {
	store *store.Store
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(st *store.Store) *ConversationHandler {
	return &ConversationHandler{store: st}
}

// Create creates a new conversation
// POST /api/conversations
func (h *ConversationHandler) Create(c *fiber.Ctx) error {
	var req models.CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	id, err := h.store.CreateConversation(req.Title, req.ModelID)
	if err != nil {
		return storeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// List returns all conversations ordered by recency
// GET /api/conversations
func (h *ConversationHandler) List(c *fiber.Ctx) error {
	return c.JSON(h.store.ListConversations())
}

// Get returns a full conversation
// GET /api/conversations/:id
func (h *ConversationHandler) Get(c *fiber.Ctx) error {
	conv, ok := h.store.GetConversation(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Conversation not found",
		})
	}
	return c.JSON(conv)
}

// Delete removes a conversation
// DELETE /api/conversations/:id
func (h *ConversationHandler) Delete(c *fiber.Ctx) error {
	if err := h.store.DeleteConversation(c.Params("id")); err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Clear removes all messages but keeps the conversation shell
// POST /api/conversations/:id/clear
func (h *ConversationHandler) Clear(c *fiber.Ctx) error {
	if err := h.store.ClearConversation(c.Params("id")); err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Rename sets a user-provided title
// PATCH /api/conversations/:id/title
func (h *ConversationHandler) Rename(c *fiber.Ctx) error {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.BodyParser(&req); err != nil || req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Title is required",
		})
	}
	if err := h.store.RenameConversation(c.Params("id"), req.Title); err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SetPinned toggles the pinned flag
// POST /api/conversations/:id/pin
func (h *ConversationHandler) SetPinned(c *fiber.Ctx) error {
	var req struct {
		Pinned bool `json:"pinned"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := h.store.SetPinned(c.Params("id"), req.Pinned); err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SetArchived toggles the archived flag
// POST /api/conversations/:id/archive
func (h *ConversationHandler) SetArchived(c *fiber.Ctx) error {
	var req struct {
		Archived bool `json:"archived"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := h.store.SetArchived(c.Params("id"), req.Archived); err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateSettings replaces the per-conversation tuning block
// PATCH /api/conversations/:id/settings
func (h *ConversationHandler) UpdateSettings(c *fiber.Ctx) error {
	var req models.ConversationSettings
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ContextWindowSize < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Context window size must not be negative",
		})
	}
	if err := h.store.UpdateSettings(c.Params("id"), req); err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddMessage appends a message to a conversation
// POST /api/conversations/:id/messages
func (h *ConversationHandler) AddMessage(c *fiber.Ctx) error {
	conversationID := c.Params("id")

	var req models.AddMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Role != models.RoleUser && req.Role != models.RoleAssistant {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Role must be 'user' or 'assistant'",
		})
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Content is required",
		})
	}

	err := h.store.AddMessage(conversationID, models.Message{
		Role:     req.Role,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		return storeError(c, err)
	}

	return c.SendStatus(fiber.StatusCreated)
}

// EditMessage replaces a message's content
// PATCH /api/conversations/:id/messages/:msgId
func (h *ConversationHandler) EditMessage(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Content is required",
		})
	}
	if err := h.store.EditMessage(c.Params("id"), c.Params("msgId"), req.Content); err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Status returns a conversation summary with the fallback window estimate
// GET /api/conversations/:id/status
func (h *ConversationHandler) Status(c *fiber.Ctx) error {
	conversationID := c.Params("id")

	conv, ok := h.store.GetConversation(conversationID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Conversation not found",
		})
	}

	window, err := h.store.BuildContextWindow(conversationID)
	if err != nil {
		return storeError(c, err)
	}

	return c.JSON(fiber.Map{
		"id":               conv.ID,
		"title":            conv.Title,
		"message_count":    conv.MessageCount,
		"total_tokens":     conv.TotalTokens,
		"archived":         conv.Archived,
		"pinned":           conv.Pinned,
		"window_messages":  len(window.Messages),
		"window_tokens":    window.EstimatedTokens,
		"window_truncated": window.Truncated,
		"updated_at":       conv.UpdatedAt,
	})
}

// Export returns the full serialized store document
// GET /api/export
func (h *ConversationHandler) Export(c *fiber.Ctx) error {
	data, err := h.store.Export()
	if err != nil {
		log.Printf("❌ [EXPORT] Failed to serialize document: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export conversations",
		})
	}
	c.Set("Content-Type", "application/json")
	c.Set("Content-Disposition", "attachment; filename=conversations.json")
	return c.Send(data)
}

// storeError maps store sentinel errors onto HTTP statuses
func storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrConversationNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Conversation not found",
		})
	case errors.Is(err, store.ErrMessageNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Message not found",
		})
	case errors.Is(err, store.ErrQuotaExceeded):
		return c.Status(fiber.StatusInsufficientStorage).JSON(fiber.Map{
			"error": "Storage quota exceeded",
		})
	default:
		log.Printf("❌ [STORE] Unexpected error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
}
