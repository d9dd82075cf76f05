package selector

import (
	"strings"
	"unicode"
)

// TimeScope is how far back a query is likely to reach
type TimeScope string

const (
	ScopeRecent     TimeScope = "recent"
	ScopeSession    TimeScope = "session"
	ScopeContextual TimeScope = "contextual"
)

// QueryAnalysis is the selector's reading of the incoming query
type QueryAnalysis struct {
	Complexity      float64 // [0,1]
	RequiresHistory bool
	Keywords        []string
	Scope           TimeScope
}

// historyCues signal that the query leans on earlier turns
var historyCues = []string{
	"previous", "earlier", "before", "that", " it ", "again", "last time",
	"you said", "we discussed", "you mentioned", "above", "continue",
	"the one", "same as",
}

var complexityKeywords = []string{
	"analyze", "compare", "architecture", "implement", "optimize", "design",
	"integrate", "refactor", "multiple", "trade-off", "tradeoff", "evaluate",
}

var sessionCues = []string{"today", "this session", "so far", "our conversation"}
var recentCues = []string{"just", "right now", "a second ago", "you just"}

var queryStopWords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "you": true,
	"this": true, "that": true, "with": true, "from": true, "what": true,
	"how": true, "why": true, "can": true, "could": true, "would": true,
	"about": true, "tell": true, "does": true, "have": true, "please": true,
}

const maxQueryKeywords = 10

// AnalyzeQuery estimates complexity, detects history dependence, extracts
// topic keywords and classifies the time scope. Purely lexical.
func AnalyzeQuery(query string) QueryAnalysis {
	lower := strings.ToLower(query)
	padded := " " + lower + " "

	qa := QueryAnalysis{
		RequiresHistory: containsAny(padded, historyCues),
		Keywords:        extractKeywords(lower),
	}

	// complexity: length plus complexity-vocabulary hits
	words := len(strings.Fields(lower))
	lengthFactor := float64(words) / 40.0 * 0.3
	if lengthFactor > 0.3 {
		lengthFactor = 0.3
	}
	hits := 0
	for _, kw := range complexityKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	hitFactor := float64(hits) * 0.15
	if hitFactor > 0.5 {
		hitFactor = 0.5
	}
	qa.Complexity = clamp01(0.2 + lengthFactor + hitFactor)

	switch {
	case containsAny(lower, recentCues):
		qa.Scope = ScopeRecent
	case containsAny(lower, sessionCues):
		qa.Scope = ScopeSession
	case qa.RequiresHistory:
		qa.Scope = ScopeContextual
	default:
		qa.Scope = ScopeRecent
	}

	return qa
}

func extractKeywords(lower string) []string {
	seen := make(map[string]bool)
	var keywords []string

	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(word) <= 3 || queryStopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) >= maxQueryKeywords {
			break
		}
	}
	return keywords
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
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
