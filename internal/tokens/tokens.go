package tokens

import "contextd/internal/models"

// EstimateTokens returns an approximate token count using the ~4 chars/token
// heuristic, rounded up to bias toward safety under a budget.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// EstimateMessageTokens estimates the cost of a single chat message.
// Accounts for role overhead (~4 tokens per message for role, separators).
func EstimateMessageTokens(msg models.Message) int {
	return 4 + EstimateTokens(msg.Content)
}

// EstimateMessagesTokens estimates the total token count for a transcript.
func EstimateMessagesTokens(messages []models.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateMessageTokens(msg)
	}
	return total
}

// Breakdown provides a detailed token usage breakdown for debugging.
type Breakdown struct {
	UserTokens      int `json:"user_tokens"`
	AssistantTokens int `json:"assistant_tokens"`
	SystemTokens    int `json:"system_tokens"`
	Total           int `json:"total"`
}

// BreakdownMessages computes a token breakdown by message role.
func BreakdownMessages(messages []models.Message) Breakdown {
	var bd Breakdown

	for _, msg := range messages {
		t := EstimateMessageTokens(msg)
		switch msg.Role {
		case models.RoleUser:
			bd.UserTokens += t
		case models.RoleAssistant:
			bd.AssistantTokens += t
		default:
			bd.SystemTokens += t
		}
	}

	bd.Total = bd.UserTokens + bd.AssistantTokens + bd.SystemTokens
	return bd
}
