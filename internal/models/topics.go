package models

import "time"

// TopicCluster groups messages sharing an extracted topic tag
type TopicCluster struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Keywords      []string  `json:"keywords"`
	MessageIDs    []string  `json:"message_ids"`
	Importance    float64   `json:"importance"` // member share of the conversation, [0,1]
	LastMentioned time.Time `json:"last_mentioned"`
}

// PhaseType is the coarse purpose of a contiguous conversation span
type PhaseType string

const (
	PhaseOpening             PhaseType = "opening"
	PhaseInformationGathering PhaseType = "information-gathering"
	PhaseProblemSolving      PhaseType = "problem-solving"
	PhaseDebugging           PhaseType = "debugging"
	PhaseExplanation         PhaseType = "explanation"
	PhaseCreativeExploration PhaseType = "creative-exploration"
	PhaseWrapUp              PhaseType = "wrap-up"
)

// ResolutionStatus tracks whether a phase reached an outcome
type ResolutionStatus string

const (
	ResolutionUnresolved ResolutionStatus = "unresolved"
	ResolutionInProgress ResolutionStatus = "in-progress"
	ResolutionResolved   ResolutionStatus = "resolved"
	ResolutionAbandoned  ResolutionStatus = "abandoned"
)

// ConversationPhase is a contiguous span of turns sharing one phase type
type ConversationPhase struct {
	ID              string           `json:"id"`
	Type            PhaseType        `json:"type"`
	StartTurn       int              `json:"start_turn"`
	EndTurn         int              `json:"end_turn"`
	PrimaryTopics   []string         `json:"primary_topics,omitempty"`
	SecondaryTopics []string         `json:"secondary_topics,omitempty"`
	Resolution      ResolutionStatus `json:"resolution"`
}

// ConversationFlow is the phase-level view of a conversation
type ConversationFlow struct {
	Phases        []ConversationPhase `json:"phases"`
	TopicSwitches int                 `json:"topic_switches"`
	Continuity    float64             `json:"continuity"` // [0,1], mean adjacent-phase topic overlap
}
