package models

// MessageCategory classifies what kind of turn a message is.
// Classification is rule-based and first-match-wins; see internal/enhancer.
type MessageCategory string

const (
	CategoryQuestion      MessageCategory = "question"
	CategoryAnswer        MessageCategory = "answer"
	CategoryInstruction   MessageCategory = "instruction"
	CategoryClarification MessageCategory = "clarification"
	CategoryFollowUp      MessageCategory = "follow-up"
	CategoryCodeRelated   MessageCategory = "code-related"
	CategoryCreative      MessageCategory = "creative"
	CategoryAnalytical    MessageCategory = "analytical"
	CategoryMeta          MessageCategory = "meta-conversation"
	CategorySystemInfo    MessageCategory = "system-info"
)

// EmotionalTone is the coarse emotional reading of a message
type EmotionalTone string

const (
	ToneFrustrated EmotionalTone = "frustrated"
	ToneExcited    EmotionalTone = "excited"
	ToneNegative   EmotionalTone = "negative"
	TonePositive   EmotionalTone = "positive"
	ToneNeutral    EmotionalTone = "neutral"
)

// IntentType is the inferred purpose behind a message
type IntentType string

const (
	IntentProblemSolving IntentType = "problem-solving"
	IntentLearning       IntentType = "learning"
	IntentCreating       IntentType = "creating"
	IntentExploring      IntentType = "exploring"
	IntentChatting       IntentType = "chatting"
)

// EnhancedMessage is a Message plus derived annotations. Annotations are
// recomputed on demand from the raw message and are never the source of
// truth; the store persists only Messages.
type EnhancedMessage struct {
	Message

	Category   MessageCategory `json:"category"`
	Importance float64         `json:"importance"` // [0,1]
	Topics     []string        `json:"topics,omitempty"`
	Tone       EmotionalTone   `json:"tone"`
	Intent     IntentType      `json:"intent"`
	TurnIndex  int             `json:"turn_index"`
	References []string        `json:"references,omitempty"` // ids of earlier messages this one points back at

	// Relevance is recomputed per query by the selector; it is the only
	// mutable annotation.
	Relevance float64 `json:"relevance"`
}
