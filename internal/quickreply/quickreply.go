package quickreply

import (
	"hash/fnv"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"contextd/internal/models"

	"github.com/patrickmn/go-cache"
)

// maxResponseLength keeps oversized replies out of the cache
const maxResponseLength = 2000

// normalizedKeyLimit truncates normalized keys to a stable length
const normalizedKeyLimit = 100

// evictShare is the fraction of oldest entries purged when over capacity
const evictShare = 0.2

// Service matches trivial turns against the pattern table and keeps a TTL
// cache of replies to factual queries. It is the one structure shared across
// conversations, so every path through it is safe for concurrent use.
type Service struct {
	cache      *cache.Cache
	ttl        time.Duration
	maxEntries int

	mu sync.Mutex // serializes capacity eviction scans

	// OnHit/OnMiss are optional metrics hooks
	OnHit  func()
	OnMiss func()
}

// NewService creates a quick-reply service with the given cache TTL and
// maximum entry count.
func NewService(ttl time.Duration, maxEntries int) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &Service{
		cache:      cache.New(ttl, 10*time.Minute),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// ShouldCallModel decides whether the generation pipeline can be skipped for
// a message. Agreement, disagreement, acknowledgment and greeting turns
// short-circuit with a canned reply; clarification, elaboration and
// continuation requests are recognized but still need the model. A cache hit
// on a previously answered factual query also short-circuits.
func (s *Service) ShouldCallModel(message, conversationID string) models.QuickReplyDecision {
	trimmed := strings.TrimSpace(message)

	for _, p := range patterns {
		if !p.re.MatchString(trimmed) {
			continue
		}
		decision := models.QuickReplyDecision{
			ShouldCall: p.shouldCall,
			Reason:     p.reason,
			Confidence: p.confidence,
		}
		if !p.shouldCall {
			decision.Reply = pickReply(p.replies, trimmed)
			log.Printf("⚡ [QUICK-REPLY] Short-circuit (%s) for conversation %s", p.reason, conversationID)
		}
		return decision
	}

	if cached, ok := s.GetCachedResponse(trimmed); ok {
		log.Printf("⚡ [QUICK-REPLY] Cache hit for conversation %s", conversationID)
		return models.QuickReplyDecision{
			ShouldCall: false,
			Reason:     "cached-response",
			Confidence: 0.8,
			Reply:      cached,
		}
	}

	return models.QuickReplyDecision{
		ShouldCall: true,
		Reason:     "no-match",
		Confidence: 1.0,
	}
}

// GenerateContextualResponse returns the short-circuit reply for a message,
// or false when the full pipeline is required.
func (s *Service) GenerateContextualResponse(message, conversationID string) (string, bool) {
	decision := s.ShouldCallModel(message, conversationID)
	if decision.ShouldCall || decision.Reply == "" {
		return "", false
	}
	return decision.Reply, true
}

// pickReply selects a canned reply deterministically from the message text
func pickReply(replies []string, message string) string {
	if len(replies) == 0 {
		return ""
	}
	h := fnv.New32a()
	h.Write([]byte(message))
	return replies[int(h.Sum32())%len(replies)]
}

// ShouldCacheResponse reports whether a query/response pair is worth
// caching: factual-looking queries only, minus personalized queries and
// replies that lean on conversation state.
func (s *Service) ShouldCacheResponse(query, response string) bool {
	if len(response) == 0 || len(response) > maxResponseLength {
		return false
	}

	trimmed := strings.TrimSpace(query)
	factual := false
	for _, re := range factualQueryPatterns {
		if re.MatchString(trimmed) {
			factual = true
			break
		}
	}
	if !factual {
		return false
	}

	paddedQuery := " " + strings.ToLower(trimmed) + " "
	for _, marker := range personalQueryMarkers {
		if strings.Contains(paddedQuery, marker) {
			return false
		}
	}

	lowerResponse := strings.ToLower(response)
	for _, marker := range contextBoundReplyMarkers {
		if strings.Contains(lowerResponse, marker) {
			return false
		}
	}

	return true
}

// CacheResponse stores a reply under the normalized query key, evicting the
// oldest entries first when the cache is over capacity.
func (s *Service) CacheResponse(query, response string) {
	key := NormalizeQuery(query)
	if key == "" {
		return
	}

	s.evictIfFull()

	s.cache.Set(key, models.CacheEntry{
		Key:        key,
		Response:   response,
		Confidence: 0.8,
		TTL:        s.ttl,
		CreatedAt:  time.Now(),
	}, s.ttl)
}

// GetCachedResponse returns a fresh cached reply for the query, if any.
// Expired entries are never returned (go-cache enforces the TTL).
func (s *Service) GetCachedResponse(query string) (string, bool) {
	key := NormalizeQuery(query)
	if key == "" {
		return "", false
	}

	value, found := s.cache.Get(key)
	if !found {
		if s.OnMiss != nil {
			s.OnMiss()
		}
		return "", false
	}
	entry, ok := value.(models.CacheEntry)
	if !ok {
		return "", false
	}
	if s.OnHit != nil {
		s.OnHit()
	}
	return entry.Response, true
}

// evictIfFull purges the oldest-created 20% of entries before an insert
// would push the cache over its maximum size.
func (s *Service) evictIfFull() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.ItemCount() < s.maxEntries {
		return
	}

	type aged struct {
		key       string
		createdAt time.Time
	}
	entries := make([]aged, 0, s.cache.ItemCount())
	for key, item := range s.cache.Items() {
		if entry, ok := item.Object.(models.CacheEntry); ok {
			entries = append(entries, aged{key: key, createdAt: entry.CreatedAt})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].createdAt.Before(entries[j].createdAt)
	})

	evict := int(float64(len(entries)) * evictShare)
	if evict < 1 {
		evict = 1
	}
	for i := 0; i < evict && i < len(entries); i++ {
		s.cache.Delete(entries[i].key)
	}
	log.Printf("🧹 [QUICK-REPLY] Evicted %d oldest cache entries (capacity %d)", evict, s.maxEntries)
}

// ItemCount returns the number of live cache entries
func (s *Service) ItemCount() int {
	return s.cache.ItemCount()
}

// NormalizeQuery lowercases, strips punctuation, collapses whitespace and
// truncates the message into a stable cache key.
func NormalizeQuery(query string) string {
	lower := strings.ToLower(strings.TrimSpace(query))

	var b strings.Builder
	lastSpace := false
	for _, r := range lower {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	key := strings.TrimSpace(b.String())
	if len(key) > normalizedKeyLimit {
		// cut on a rune boundary so the key stays valid UTF-8
		cut := normalizedKeyLimit
		for cut > 0 && !utf8.RuneStart(key[cut]) {
			cut--
		}
		key = key[:cut]
	}
	return key
}
