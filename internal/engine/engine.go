package engine

import (
	"log"
	"time"

	"contextd/internal/enhancer"
	"contextd/internal/logging"
	"contextd/internal/metrics"
	"contextd/internal/models"
	"contextd/internal/quickreply"
	"contextd/internal/selector"
	"contextd/internal/store"
	"contextd/internal/topics"
)

// Engine is the conversation context optimization engine: it annotates the
// history, tracks topics and phases, and selects the bounded message subset
// to re-submit with a query. Context optimization is best-effort; every
// internal failure degrades to the store's trailing-window fallback instead
// of surfacing to the user.
type Engine struct {
	store       *store.Store
	selector    *selector.Selector
	quick       *quickreply.Service
	metrics     *metrics.Metrics
	maxClusters int
}

// New creates an engine around an opened store
func New(st *store.Store, sel *selector.Selector, quick *quickreply.Service, m *metrics.Metrics, maxClusters int) *Engine {
	if maxClusters <= 0 {
		maxClusters = topics.DefaultMaxClusters
	}
	e := &Engine{
		store:       st,
		selector:    sel,
		quick:       quick,
		metrics:     m,
		maxClusters: maxClusters,
	}
	if m != nil && quick != nil {
		quick.OnHit = m.CacheHits.Inc
		quick.OnMiss = m.CacheMisses.Inc
	}
	return e
}

// GetOptimizedContext is the primary entry point: given the full history and
// the new query, it returns the bounded, chronologically ordered message
// subset to submit to the generation call. It never fails: a panic or
// heuristic error inside the pipeline yields the trailing-window fallback.
func (e *Engine) GetOptimizedContext(conversationID string, history []models.Message, query string, budget int) selector.Result {
	start := time.Now()
	if e.metrics != nil {
		e.metrics.Selections.Inc()
		defer func() {
			e.metrics.SelectionLatency.Observe(time.Since(start).Seconds())
		}()
	}

	result, ok := e.trySelect(history, query, budget)
	if !ok {
		result = e.fallback(conversationID, history, budget)
	}

	logging.WithSelection(logging.WithConversation(conversationID), query, budget).Debug(
		"context selected",
		"messages", len(result.Messages),
		"tokens", result.EstimatedTokens,
		"fallback", result.FallbackUsed,
	)
	return result
}

// trySelect runs the full enhancement → clustering → selection pipeline.
// The recover is deliberate: selection is a best-effort enhancement and the
// chat must keep working in degraded mode.
func (e *Engine) trySelect(history []models.Message, query string, budget int) (result selector.Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️  [ENGINE] Selection pipeline failed: %v, using fallback window", r)
			ok = false
		}
	}()

	enhanced := enhancer.EnhanceAll(history)
	clusters := topics.ClusterTopics(enhanced, e.maxClusters)
	return e.selector.Select(enhanced, clusters, query, budget), true
}

// fallback degrades to a purely recency-based window
func (e *Engine) fallback(conversationID string, history []models.Message, budget int) selector.Result {
	if e.metrics != nil {
		e.metrics.SelectionFallbacks.Inc()
	}

	// prefer the store's window when the conversation is known to it
	if e.store != nil && conversationID != "" {
		if window, err := e.store.BuildContextWindow(conversationID); err == nil {
			return selector.Result{
				Messages:        window.Messages,
				EstimatedTokens: window.EstimatedTokens,
				Truncated:       window.Truncated,
				FallbackUsed:    true,
			}
		}
	}
	return e.selector.Fallback(history, budget)
}

// AnalyzeConversation exposes the topic/phase view of a history
func (e *Engine) AnalyzeConversation(history []models.Message) ([]models.TopicCluster, models.ConversationFlow) {
	enhanced := enhancer.EnhanceAll(history)
	return topics.ClusterTopics(enhanced, e.maxClusters), topics.AnalyzePhases(enhanced)
}

// ShouldCallModel is the pre-generation short-circuit check
func (e *Engine) ShouldCallModel(message, conversationID string) models.QuickReplyDecision {
	decision := e.quick.ShouldCallModel(message, conversationID)
	if e.metrics != nil && !decision.ShouldCall {
		e.metrics.ShortCircuits.WithLabelValues(decision.Reason).Inc()
	}
	return decision
}

// GenerateContextualResponse returns the canned or cached reply for a
// trivial turn, or false when the full pipeline is required.
func (e *Engine) GenerateContextualResponse(message, conversationID string) (string, bool) {
	return e.quick.GenerateContextualResponse(message, conversationID)
}

// RecordResponse gives the cache a chance to keep a generated reply for
// repeated factual queries.
func (e *Engine) RecordResponse(query, response string) {
	if e.quick.ShouldCacheResponse(query, response) {
		e.quick.CacheResponse(query, response)
	}
}
