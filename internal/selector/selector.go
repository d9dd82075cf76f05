package selector

import (
	"sort"
	"strings"

	"contextd/internal/models"
	"contextd/internal/tokens"
)

// Config holds the selection tuning knobs. The scoring weights are
// hand-tuned heuristics and deliberately live in configuration.
type Config struct {
	TokenBudget      int
	RecentCount      int // messages always included for local continuity
	TopMatches       int // lexical relevance matches kept
	FallbackCount    int // trailing messages used when selection fails
	RecencyWeight    float64
	ImportanceWeight float64
	RelevanceWeight  float64
}

// DefaultConfig returns the default selection configuration
func DefaultConfig() Config {
	return Config{
		TokenBudget:      4000,
		RecentCount:      5,
		TopMatches:       10,
		FallbackCount:    15,
		RecencyWeight:    0.35,
		ImportanceWeight: 0.2,
		RelevanceWeight:  0.45,
	}
}

// Result is a bounded, chronologically ordered message subset
type Result struct {
	Messages        []models.Message `json:"messages"`
	EstimatedTokens int              `json:"estimated_tokens"`
	Truncated       bool             `json:"truncated"`
	FallbackUsed    bool             `json:"fallback_used"`
}

// Selector picks the message subset to re-submit with a query
type Selector struct {
	cfg Config
}

// New creates a selector with the given configuration
func New(cfg Config) *Selector {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultConfig().TokenBudget
	}
	if cfg.RecentCount <= 0 {
		cfg.RecentCount = DefaultConfig().RecentCount
	}
	if cfg.TopMatches <= 0 {
		cfg.TopMatches = DefaultConfig().TopMatches
	}
	if cfg.FallbackCount <= 0 {
		cfg.FallbackCount = DefaultConfig().FallbackCount
	}
	if cfg.RecencyWeight+cfg.ImportanceWeight+cfg.RelevanceWeight == 0 {
		d := DefaultConfig()
		cfg.RecencyWeight = d.RecencyWeight
		cfg.ImportanceWeight = d.ImportanceWeight
		cfg.RelevanceWeight = d.RelevanceWeight
	}
	return &Selector{cfg: cfg}
}

// candidate is a message under consideration with its per-query scores
type candidate struct {
	em        models.EnhancedMessage
	relevance float64
	score     float64
}

// Select produces the bounded context for a query. The returned sequence is
// chronological, its estimated cost never exceeds the budget, and the most
// recent message is always present; if that one message alone exceeds the
// budget it is still included and the result is flagged truncated.
func (s *Selector) Select(enhanced []models.EnhancedMessage, clusters []models.TopicCluster, query string, budget int) Result {
	if budget <= 0 {
		budget = s.cfg.TokenBudget
	}
	if len(enhanced) == 0 {
		return Result{Messages: []models.Message{}}
	}

	qa := AnalyzeQuery(query)
	candidates := s.gatherCandidates(enhanced, clusters, qa)
	s.scoreCandidates(candidates, len(enhanced))

	// relevance-ordered, stable so equal scores keep chronological order
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	accepted := make(map[string]models.EnhancedMessage)
	total := 0
	truncated := false

	// continuity guarantee: the latest message goes in first, budget or not
	latest := enhanced[len(enhanced)-1]
	latestCost := tokens.EstimateMessageTokens(latest.Message)
	accepted[latest.ID] = latest
	total += latestCost
	if latestCost > budget {
		truncated = true
	}

	// local continuity: the most recent K messages, newest first, while they fit
	for i := len(enhanced) - 2; i >= 0 && i >= len(enhanced)-s.cfg.RecentCount; i-- {
		em := enhanced[i]
		cost := tokens.EstimateMessageTokens(em.Message)
		if total+cost > budget {
			truncated = true
			break
		}
		accepted[em.ID] = em
		total += cost
	}

	// scored candidates in descending score order until the budget is hit
	for _, c := range candidates {
		if _, ok := accepted[c.em.ID]; ok {
			continue
		}
		cost := tokens.EstimateMessageTokens(c.em.Message)
		if total+cost > budget {
			truncated = true
			break
		}
		accepted[c.em.ID] = c.em
		total += cost
	}

	// back to chronological order: providers expect a time-ordered transcript
	ordered := make([]models.EnhancedMessage, 0, len(accepted))
	for _, em := range accepted {
		ordered = append(ordered, em)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TurnIndex < ordered[j].TurnIndex
	})

	messages := make([]models.Message, len(ordered))
	for i, em := range ordered {
		messages[i] = em.Message
	}

	return Result{
		Messages:        messages,
		EstimatedTokens: total,
		Truncated:       truncated,
	}
}

// gatherCandidates unions the lexical matches, focused-topic members and
// keyword-tag intersections, deduplicated by message id.
func (s *Selector) gatherCandidates(enhanced []models.EnhancedMessage, clusters []models.TopicCluster, qa QueryAnalysis) []*candidate {
	byID := make(map[string]*candidate)
	var ordered []*candidate // chronological insertion order

	add := func(em models.EnhancedMessage, relevance float64) {
		if c, ok := byID[em.ID]; ok {
			if relevance > c.relevance {
				c.relevance = relevance
			}
			return
		}
		c := &candidate{em: em, relevance: relevance}
		byID[em.ID] = c
		ordered = append(ordered, c)
	}

	// lexical keyword matches against the whole history
	if qa.RequiresHistory && len(qa.Keywords) > 0 {
		matches := make([]*candidate, 0)
		for _, em := range enhanced {
			rel := lexicalRelevance(em.Content, qa.Keywords)
			if rel > 0 {
				matches = append(matches, &candidate{em: em, relevance: rel})
			}
		}
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].relevance > matches[j].relevance
		})
		if len(matches) > s.cfg.TopMatches {
			matches = matches[:s.cfg.TopMatches]
		}
		// re-add in chronological order so ties stay stable later
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].em.TurnIndex < matches[j].em.TurnIndex
		})
		for _, m := range matches {
			add(m.em, m.relevance)
		}
	}

	// messages on the conversation's currently focused topics
	focus := focusedTopics(enhanced, clusters)
	queryTags := make(map[string]bool, len(qa.Keywords))
	for _, kw := range qa.Keywords {
		queryTags[kw] = true
	}

	for _, em := range enhanced {
		best := 0.0
		for _, tag := range em.Topics {
			if queryTags[tag] && best < 0.6 {
				best = 0.6
			}
			if focus[tag] && best < 0.5 {
				best = 0.5
			}
		}
		if best > 0 {
			add(em, best)
		}
	}

	return ordered
}

// focusedTopics are the most frequent tags among the last few messages,
// widened by the top clusters of the whole conversation.
func focusedTopics(enhanced []models.EnhancedMessage, clusters []models.TopicCluster) map[string]bool {
	focus := make(map[string]bool)

	counts := make(map[string]int)
	start := len(enhanced) - 5
	if start < 0 {
		start = 0
	}
	for _, em := range enhanced[start:] {
		for _, tag := range em.Topics {
			counts[tag]++
		}
	}
	for tag, n := range counts {
		if n >= 2 {
			focus[tag] = true
		}
	}

	// top clusters keep long-running subjects in focus
	for i, cluster := range clusters {
		if i >= 3 {
			break
		}
		focus[cluster.Name] = true
	}
	return focus
}

// lexicalRelevance is the matched share of query keywords, [0,1]
func lexicalRelevance(content string, keywords []string) float64 {
	lower := strings.ToLower(content)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

// scoreCandidates computes the weighted final score for every candidate
func (s *Selector) scoreCandidates(candidates []*candidate, historyLen int) {
	for _, c := range candidates {
		recency := 0.0
		if historyLen > 1 {
			recency = float64(c.em.TurnIndex) / float64(historyLen-1)
		}
		c.em.Relevance = clamp01(c.relevance)
		c.score = s.cfg.RecencyWeight*recency +
			s.cfg.ImportanceWeight*c.em.Importance +
			s.cfg.RelevanceWeight*c.em.Relevance
	}
}

// Fallback returns the trailing raw messages trimmed to the budget. Used
// whenever the scoring pipeline fails; the latest message always survives.
func (s *Selector) Fallback(history []models.Message, budget int) Result {
	if budget <= 0 {
		budget = s.cfg.TokenBudget
	}
	if len(history) == 0 {
		return Result{Messages: []models.Message{}, FallbackUsed: true}
	}

	start := len(history) - s.cfg.FallbackCount
	if start < 0 {
		start = 0
	}
	window := history[start:]

	// trim oldest-first until the window fits
	total := tokens.EstimateMessagesTokens(window)
	truncated := start > 0
	for len(window) > 1 && total > budget {
		total -= tokens.EstimateMessageTokens(window[0])
		window = window[1:]
		truncated = true
	}
	if total > budget {
		truncated = true
	}

	out := make([]models.Message, len(window))
	copy(out, window)

	return Result{
		Messages:        out,
		EstimatedTokens: total,
		Truncated:       truncated,
		FallbackUsed:    true,
	}
}
