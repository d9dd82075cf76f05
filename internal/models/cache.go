package models

import "time"

// CacheEntry is a cached reply for a normalized query. Entries expire after
// their TTL; when the cache is over capacity the oldest-created entries are
// evicted first.
type CacheEntry struct {
	Key        string        `json:"key"`
	Response   string        `json:"response"`
	Confidence float64       `json:"confidence"`
	TTL        time.Duration `json:"ttl"`
	CreatedAt  time.Time     `json:"created_at"`
}

// QuickReplyDecision is the pre-generation short-circuit verdict
type QuickReplyDecision struct {
	ShouldCall bool    `json:"should_call"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Reply      string  `json:"reply,omitempty"` // canned or cached text when ShouldCall is false
}
