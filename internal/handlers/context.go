package handlers

import (
	"log"

	"contextd/internal/engine"
	"contextd/internal/models"
	"contextd/internal/store"

	"github.com/gofiber/fiber/v2"
)

// ContextHandler exposes the optimization engine over HTTP
type ContextHandler struct {
	engine *engine.Engine
	store  *store.Store
}

// NewContextHandler creates a new context handler
func NewContextHandler(eng *engine.Engine, st *store.Store) *ContextHandler {
	return &ContextHandler{engine: eng, store: st}
}

// Optimize returns the bounded context window for a query
// POST /api/conversations/:id/context
func (h *ContextHandler) Optimize(c *fiber.Ctx) error {
	conversationID := c.Params("id")

	var req models.ContextRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	conv, ok := h.store.GetConversation(conversationID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Conversation not found",
		})
	}

	history := conv.Messages
	if !conv.Settings.RetainContext && len(history) > 1 {
		// the conversation opted out of history re-submission; only the
		// latest turn accompanies the query
		history = history[len(history)-1:]
	}

	result := h.engine.GetOptimizedContext(conversationID, history, req.Query, req.TokenBudget)
	log.Printf("🎯 [CONTEXT] Selected %d/%d messages (%d tokens) for conversation %s",
		len(result.Messages), len(conv.Messages), result.EstimatedTokens, conversationID)

	return c.JSON(result)
}

// Analyze returns the topic clusters and phase flow of a conversation
// GET /api/conversations/:id/analysis
func (h *ContextHandler) Analyze(c *fiber.Ctx) error {
	conversationID := c.Params("id")

	conv, ok := h.store.GetConversation(conversationID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Conversation not found",
		})
	}

	clusters, flow := h.engine.AnalyzeConversation(conv.Messages)
	return c.JSON(fiber.Map{
		"topics": clusters,
		"flow":   flow,
	})
}

// QuickReply runs the pre-generation short-circuit check
// POST /api/quick-reply
func (h *ContextHandler) QuickReply(c *fiber.Ctx) error {
	var req struct {
		Message        string `json:"message"`
		ConversationID string `json:"conversation_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	return c.JSON(h.engine.ShouldCallModel(req.Message, req.ConversationID))
}

// RecordResponse lets the surrounding service hand a generated reply back to
// the cache for repeated factual queries
// POST /api/quick-reply/record
func (h *ContextHandler) RecordResponse(c *fiber.Ctx) error {
	var req struct {
		Query    string `json:"query"`
		Response string `json:"response"`
	}
	if err := c.BodyParser(&req); err != nil || req.Query == "" || req.Response == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query and response are required",
		})
	}

	h.engine.RecordResponse(req.Query, req.Response)
	return c.SendStatus(fiber.StatusNoContent)
}
