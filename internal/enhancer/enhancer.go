package enhancer

import (
	"strings"
	"unicode"

	"contextd/internal/models"
)

// Importance scoring constants. Contributions are bounded and additive; the
// final score is clamped to [0,1].
const (
	importanceBase       = 0.3
	lengthContribCap     = 0.15
	questionContrib      = 0.15
	codeBlockContrib     = 0.2
	errorVocabContrib    = 0.1
	solutionVocabContrib = 0.1
	recencyContribMax    = 0.2
)

var errorVocab = []string{"error", "bug", "fail", "broken", "crash", "exception", "wrong", "issue", "problem"}
var solutionVocab = []string{"solution", "fixed", "solved", "resolved", "works now", "the answer", "here's how"}

// stopWords are skipped by the named-entity heuristic
var stopWords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "you": true,
	"this": true, "that": true, "with": true, "from": true, "what": true,
	"how": true, "why": true, "can": true, "not": true, "are": true,
}

// maxEntityTags caps how many named-entity tags a single message can add
const maxEntityTags = 5

// maxBackReferences is how many recent messages a back-reference points at
const maxBackReferences = 3

// Enhance annotates a raw message with derived classification and scoring.
// It is a pure function: the same message at the same position always yields
// identical annotations, and the store never persists the result.
func Enhance(msg models.Message, position int, history []models.Message) models.EnhancedMessage {
	lower := strings.ToLower(msg.Content)

	return models.EnhancedMessage{
		Message:    msg,
		Category:   classifyCategory(lower, msg.Role),
		Importance: scoreImportance(msg.Content, lower, position, len(history)),
		Topics:     extractTopics(msg.Content, lower),
		Tone:       classifyTone(lower),
		Intent:     classifyIntent(lower),
		TurnIndex:  position,
		References: detectReferences(lower, position, history),
	}
}

// EnhanceAll annotates a full history in order
func EnhanceAll(history []models.Message) []models.EnhancedMessage {
	enhanced := make([]models.EnhancedMessage, len(history))
	for i, msg := range history {
		enhanced[i] = Enhance(msg, i, history)
	}
	return enhanced
}

// classifyCategory walks the ordered rule table; when nothing matches, the
// default depends on the role: assistant turns are answers, user turns are
// treated as analytical, and anything else is system info.
func classifyCategory(lower, role string) models.MessageCategory {
	for _, rule := range categoryRules {
		if rule.matches(lower) {
			return rule.category
		}
	}
	switch role {
	case models.RoleAssistant:
		return models.CategoryAnswer
	case models.RoleUser:
		if len(lower) < 20 {
			return models.CategoryClarification
		}
		return models.CategoryAnalytical
	default:
		return models.CategorySystemInfo
	}
}

func scoreImportance(content, lower string, position, historyLen int) float64 {
	score := importanceBase

	lengthContrib := float64(len(content)) / 1000.0 * lengthContribCap
	if lengthContrib > lengthContribCap {
		lengthContrib = lengthContribCap
	}
	score += lengthContrib

	if strings.Contains(content, "?") {
		score += questionContrib
	}
	if strings.Contains(content, "```") {
		score += codeBlockContrib
	}
	if containsAny(lower, errorVocab) {
		score += errorVocabContrib
	}
	if containsAny(lower, solutionVocab) {
		score += solutionVocabContrib
	}
	if historyLen > 1 {
		score += recencyContribMax * float64(position) / float64(historyLen-1)
	}

	return clamp01(score)
}

// extractTopics combines the fixed domain vocabulary with a heuristic that
// treats capitalized multi-letter tokens as candidate named entities.
func extractTopics(content, lower string) []string {
	seen := make(map[string]bool)
	var topics []string

	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if tag, ok := topicVocabulary[word]; ok && !seen[tag] {
			seen[tag] = true
			topics = append(topics, tag)
		}
	}

	entityCount := 0
	words := strings.Fields(content)
	for i, word := range words {
		if i == 0 {
			continue // sentence-initial capitals are not entities
		}
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(trimmed) < 3 || entityCount >= maxEntityTags {
			continue
		}
		runes := []rune(trimmed)
		if unicode.IsUpper(runes[0]) && !stopWords[strings.ToLower(trimmed)] {
			tag := strings.ToLower(trimmed)
			if !seen[tag] {
				seen[tag] = true
				topics = append(topics, tag)
				entityCount++
			}
		}
	}

	return topics
}

func classifyTone(lower string) models.EmotionalTone {
	for _, rule := range toneRules {
		if containsAny(lower, rule.keywords) {
			return rule.tone
		}
	}
	return models.ToneNeutral
}

func classifyIntent(lower string) models.IntentType {
	for _, rule := range intentRules {
		if containsAny(lower, rule.keywords) {
			return rule.intent
		}
	}
	return models.IntentChatting
}

// detectReferences looks for backward-reference cue words and, when found,
// points at the ids of the most recent few preceding messages.
func detectReferences(lower string, position int, history []models.Message) []string {
	if position == 0 || !containsAny(lower, backReferenceCues) {
		return nil
	}

	start := position - maxBackReferences
	if start < 0 {
		start = 0
	}

	refs := make([]string, 0, position-start)
	for i := start; i < position && i < len(history); i++ {
		refs = append(refs, history[i].ID)
	}
	return refs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
