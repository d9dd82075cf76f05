package models

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// GenerationMetadata captures provider details for a generated reply
type GenerationMetadata struct {
	ModelID    string `json:"model_id,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// Message is a single conversational turn. Messages are append-only and
// immutable once stored, except for an explicit user edit which replaces
// the content (derived annotations are recomputed, never persisted).
type Message struct {
	ID        string              `json:"id"`
	Role      string              `json:"role"` // "user" or "assistant"
	Content   string              `json:"content"`
	Metadata  *GenerationMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// ConversationSettings holds per-conversation tuning
type ConversationSettings struct {
	ContextWindowSize int  `json:"context_window_size"` // trailing-N fallback size
	RetainContext     bool `json:"retain_context"`
}

// Conversation owns an ordered message sequence. Insertion order is
// chronological order; the store never reorders messages.
type Conversation struct {
	ID           string               `json:"id"`
	Title        string               `json:"title"`
	ModelID      string               `json:"model_id,omitempty"`
	Messages     []Message            `json:"messages"`
	Settings     ConversationSettings `json:"settings"`
	MessageCount int                  `json:"message_count"`
	TotalTokens  int                  `json:"total_tokens"` // cumulative token usage reported by providers
	Archived     bool                 `json:"archived"`
	Pinned       bool                 `json:"pinned"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// ConversationSummary is a lightweight listing item
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ModelID      string    `json:"model_id,omitempty"`
	MessageCount int       `json:"message_count"`
	Archived     bool      `json:"archived"`
	Pinned       bool      `json:"pinned"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateConversationRequest is the request body for creating a conversation
type CreateConversationRequest struct {
	Title   string `json:"title,omitempty"`
	ModelID string `json:"model_id,omitempty"`
}

// AddMessageRequest is the request body for appending a message
type AddMessageRequest struct {
	Role     string              `json:"role"`
	Content  string              `json:"content"`
	Metadata *GenerationMetadata `json:"metadata,omitempty"`
}

// ContextRequest asks the engine for an optimized context window
type ContextRequest struct {
	Query       string `json:"query"`
	TokenBudget int    `json:"token_budget,omitempty"` // 0 = use configured default
}
