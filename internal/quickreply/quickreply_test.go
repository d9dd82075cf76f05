package quickreply

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestService() *Service {
	return NewService(time.Minute, 100)
}

func TestShouldCallModelPatterns(t *testing.T) {
	s := newTestService()

	tests := []struct {
		name       string
		message    string
		shouldCall bool
		reason     string
	}{
		{"greeting", "Hello", false, "greeting"},
		{"greeting with punctuation", "hey!", false, "greeting"},
		{"agreement", "yes", false, "agreement"},
		{"disagreement", "nope", false, "disagreement"},
		{"acknowledgment", "thanks", false, "acknowledgment"},
		{"acknowledgment phrase", "got it", false, "acknowledgment"},
		{"clarification needs model", "what do you mean?", true, "clarification-request"},
		{"elaboration needs model", "tell me more", true, "elaboration-request"},
		{"continuation needs model", "continue", true, "continuation-request"},
		{"real question passes through", "how do I deploy this service?", true, "no-match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := s.ShouldCallModel(tt.message, "conv-1")
			if decision.ShouldCall != tt.shouldCall {
				t.Errorf("ShouldCall = %v, want %v", decision.ShouldCall, tt.shouldCall)
			}
			if decision.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", decision.Reason, tt.reason)
			}
			if !tt.shouldCall && decision.Reply == "" {
				t.Error("short-circuit decision must carry a reply")
			}
			if tt.shouldCall && decision.Reply != "" {
				t.Errorf("model-required decision should not carry a reply, got %q", decision.Reply)
			}
		})
	}
}

func TestPickReplyDeterministic(t *testing.T) {
	s := newTestService()
	first := s.ShouldCallModel("thanks", "conv-1")
	second := s.ShouldCallModel("thanks", "conv-2")
	if first.Reply != second.Reply {
		t.Errorf("same message picked different replies: %q vs %q", first.Reply, second.Reply)
	}
}

func TestCachedFactualResponse(t *testing.T) {
	s := newTestService()

	query := "What is recursion?"
	response := "Recursion is when a function calls itself to solve smaller subproblems."

	if !s.ShouldCacheResponse(query, response) {
		t.Fatal("factual query/response pair should be cacheable")
	}
	s.CacheResponse(query, response)

	decision := s.ShouldCallModel(query, "conv-1")
	if decision.ShouldCall {
		t.Fatal("cached factual query should short-circuit")
	}
	if decision.Reason != "cached-response" {
		t.Errorf("Reason = %q, want cached-response", decision.Reason)
	}
	if decision.Reply != response {
		t.Errorf("Reply = %q, want the cached response", decision.Reply)
	}

	// punctuation and casing variants normalize to the same key
	variant := s.ShouldCallModel("what is RECURSION??", "conv-1")
	if variant.ShouldCall {
		t.Error("normalized variant should hit the same cache entry")
	}
}

func TestCacheExpiry(t *testing.T) {
	s := NewService(20*time.Millisecond, 100)

	s.CacheResponse("What is recursion?", "a stable answer")
	if _, ok := s.GetCachedResponse("What is recursion?"); !ok {
		t.Fatal("fresh entry should be retrievable")
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := s.GetCachedResponse("What is recursion?"); ok {
		t.Error("entry should have expired")
	}
}

func TestShouldCacheResponseRejections(t *testing.T) {
	s := newTestService()

	tests := []struct {
		name     string
		query    string
		response string
	}{
		{"non-factual query", "fix this bug for me", "done"},
		{"personalized query", "what is my schedule today", "busy"},
		{"context-bound response", "what is the config format", "as we discussed earlier, it is YAML"},
		{"oversized response", "what is recursion", strings.Repeat("x", maxResponseLength+1)},
		{"empty response", "what is recursion", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s.ShouldCacheResponse(tt.query, tt.response) {
				t.Errorf("ShouldCacheResponse(%q, ...) = true, want false", tt.query)
			}
		})
	}
}

func TestCacheEviction(t *testing.T) {
	s := NewService(time.Minute, 5)

	queries := []string{
		"what is alpha",
		"what is beta",
		"what is gamma",
		"what is delta",
		"what is epsilon",
	}
	for _, q := range queries {
		s.CacheResponse(q, "answer to "+q)
		time.Sleep(2 * time.Millisecond) // distinct creation times for age ordering
	}
	if s.ItemCount() != 5 {
		t.Fatalf("cache holds %d entries, want 5", s.ItemCount())
	}

	// next insert is over capacity and purges the oldest entry first
	s.CacheResponse("what is zeta", "answer to zeta")

	if s.ItemCount() != 5 {
		t.Errorf("cache holds %d entries after eviction, want 5", s.ItemCount())
	}
	if _, ok := s.GetCachedResponse("what is alpha"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := s.GetCachedResponse("what is zeta"); !ok {
		t.Error("newest entry should be present")
	}
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{"lowercase and strip punctuation", "  What IS   Recursion?! ", "what is recursion"},
		{"collapse whitespace", "a\t b\n  c", "a b c"},
		{"empty", "   ", ""},
		{"digits kept", "top 10 results", "top 10 results"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeQuery(tt.query); got != tt.expected {
				t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.query, got, tt.expected)
			}
		})
	}

	long := strings.Repeat("word ", 50)
	if got := NormalizeQuery(long); len(got) > normalizedKeyLimit {
		t.Errorf("normalized key length %d exceeds limit %d", len(got), normalizedKeyLimit)
	}

	// truncation lands on a rune boundary even for multi-byte input
	wide := strings.Repeat("日本語", 40)
	got := NormalizeQuery(wide)
	if len(got) > normalizedKeyLimit {
		t.Errorf("normalized key length %d exceeds limit %d", len(got), normalizedKeyLimit)
	}
	if !utf8.ValidString(got) {
		t.Errorf("normalized key %q is not valid UTF-8", got)
	}
}

func TestCacheMetricsHooks(t *testing.T) {
	s := newTestService()

	hits, misses := 0, 0
	s.OnHit = func() { hits++ }
	s.OnMiss = func() { misses++ }

	s.GetCachedResponse("what is recursion")
	s.CacheResponse("what is recursion", "an answer")
	s.GetCachedResponse("what is recursion")

	if misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}
