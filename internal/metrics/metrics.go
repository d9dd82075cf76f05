package metrics

import (
	"sync"

	"contextd/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the engine
type Metrics struct {
	// Context selection
	Selections         prometheus.Counter
	SelectionFallbacks prometheus.Counter
	SelectionLatency   prometheus.Histogram

	// Quick-reply short-circuits by reason
	ShortCircuits *prometheus.CounterVec

	// Response cache
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Store
	StoreFlushes prometheus.Counter
}

var (
	global *Metrics
	once   sync.Once
)

// Init initializes the Prometheus metrics. Idempotent: repeated calls
// return the same instance (promauto panics on double registration).
func Init(st *store.Store) *Metrics {
	once.Do(func() {
		global = &Metrics{
			Selections: promauto.NewCounter(prometheus.CounterOpts{
				Name: "contextd_selections_total",
				Help: "Total number of context selections performed",
			}),
			SelectionFallbacks: promauto.NewCounter(prometheus.CounterOpts{
				Name: "contextd_selection_fallbacks_total",
				Help: "Selections that degraded to the trailing-window fallback",
			}),
			SelectionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "contextd_selection_duration_seconds",
				Help:    "Context selection latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			}),
			ShortCircuits: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "contextd_quick_reply_short_circuits_total",
				Help: "Generation calls skipped by the quick-reply layer, by reason",
			}, []string{"reason"}),
			CacheHits: promauto.NewCounter(prometheus.CounterOpts{
				Name: "contextd_response_cache_hits_total",
				Help: "Response cache hits",
			}),
			CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
				Name: "contextd_response_cache_misses_total",
				Help: "Response cache misses",
			}),
			StoreFlushes: promauto.NewCounter(prometheus.CounterOpts{
				Name: "contextd_store_flushes_total",
				Help: "Successful store document flushes to disk",
			}),
		}

		if st != nil {
			prometheus.MustRegister(prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "contextd_conversations_current",
					Help: "Current number of stored conversations",
				},
				func() float64 {
					return float64(st.Stats().TotalConversations)
				},
			))
		}
	})
	return global
}
