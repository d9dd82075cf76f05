package enhancer

import (
	"strings"

	"contextd/internal/models"
)

// categoryRule pairs a predicate with the category it assigns. Rules are
// evaluated in order and the first match wins, so priority lives in the
// table itself rather than in the matching code.
type categoryRule struct {
	category models.MessageCategory
	matches  func(lower string) bool
}

var codeKeywords = []string{
	"code", "function", "compile", "debug", "stack trace", "exception",
	"syntax", "variable", "import", "package", "api", "sql", "regex",
}

var metaKeywords = []string{
	"this conversation", "you said", "earlier you", "as you mentioned",
	"let's change the subject", "summarize our", "back to what we",
}

var instructionPrefixes = []string{
	"please ", "write ", "create ", "make ", "generate ", "give me ",
	"show me ", "list ", "translate ", "convert ", "add ", "remove ",
	"update ", "fix ",
}

var followUpPrefixes = []string{
	"also", "and ", "what about", "how about", "additionally",
	"furthermore", "one more thing", "ok but", "but what",
}

var creativeKeywords = []string{
	"story", "poem", "imagine", "brainstorm", "creative", "fiction",
	"lyrics", "slogan", "name ideas",
}

var questionPrefixes = []string{
	"what", "how", "why", "when", "where", "who", "which",
	"can ", "could ", "would ", "should ", "is ", "are ", "do ", "does ",
}

// categoryRules is the ordered classification table:
// code-related → question → meta-conversation → instruction → follow-up →
// creative → default by role (applied in classifyCategory).
var categoryRules = []categoryRule{
	{models.CategoryCodeRelated, func(lower string) bool {
		return strings.Contains(lower, "```") || containsAny(lower, codeKeywords)
	}},
	{models.CategoryQuestion, func(lower string) bool {
		return strings.Contains(lower, "?") || hasAnyPrefix(lower, questionPrefixes)
	}},
	{models.CategoryMeta, func(lower string) bool {
		return containsAny(lower, metaKeywords)
	}},
	{models.CategoryInstruction, func(lower string) bool {
		return hasAnyPrefix(lower, instructionPrefixes)
	}},
	{models.CategoryFollowUp, func(lower string) bool {
		return hasAnyPrefix(lower, followUpPrefixes)
	}},
	{models.CategoryCreative, func(lower string) bool {
		return containsAny(lower, creativeKeywords)
	}},
}

// toneRule / intentRule tables work the same way: disjoint keyword sets,
// first match wins, exactly one label per message.
type toneRule struct {
	tone     models.EmotionalTone
	keywords []string
}

var toneRules = []toneRule{
	{models.ToneFrustrated, []string{
		"frustrated", "annoying", "not working", "still broken", "still failing",
		"ugh", "why won't", "this is ridiculous", "again?!",
	}},
	{models.ToneExcited, []string{
		"awesome", "amazing", "can't wait", "love it", "excellent", "fantastic",
	}},
	{models.ToneNegative, []string{
		"bad", "wrong", "hate", "terrible", "problem", "fail", "broken", "worse",
	}},
	{models.TonePositive, []string{
		"thanks", "thank you", "great", "good", "perfect", "nice", "helpful",
	}},
}

type intentRule struct {
	intent   models.IntentType
	keywords []string
}

var intentRules = []intentRule{
	{models.IntentProblemSolving, []string{
		"fix", "solve", "issue", "error", "broken", "help me", "doesn't work",
		"not working", "troubleshoot",
	}},
	{models.IntentLearning, []string{
		"how does", "what is", "what are", "explain", "understand", "learn",
		"difference between", "why does",
	}},
	{models.IntentCreating, []string{
		"create", "build", "write", "make", "generate", "design", "draft",
	}},
	{models.IntentExploring, []string{
		"what if", "compare", "alternative", "options", "explore", "versus",
		"pros and cons",
	}},
}

// backReferenceCues signal that a message points at earlier turns
var backReferenceCues = []string{
	"as i said", "as you said", "you mentioned", "earlier", "previous",
	"previously", "before", "above", "that one", "the last", "again",
}

// topicVocabulary maps domain keywords to their topic tag
var topicVocabulary = map[string]string{
	"code":         "programming",
	"function":     "programming",
	"program":      "programming",
	"script":       "programming",
	"bug":          "debugging",
	"error":        "debugging",
	"crash":        "debugging",
	"debug":        "debugging",
	"database":     "databases",
	"sql":          "databases",
	"query":        "databases",
	"api":          "apis",
	"endpoint":     "apis",
	"http":         "apis",
	"deploy":       "deployment",
	"docker":       "deployment",
	"server":       "deployment",
	"test":         "testing",
	"testing":      "testing",
	"design":       "design",
	"architecture": "design",
	"performance":  "performance",
	"slow":         "performance",
	"optimize":     "performance",
	"security":     "security",
	"auth":         "security",
	"password":     "security",
	"data":         "data",
	"file":         "data",
	"json":         "data",
	"model":        "machine-learning",
	"training":     "machine-learning",
	"math":         "math",
	"equation":     "math",
	"write":        "writing",
	"essay":        "writing",
	"email":        "writing",
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
