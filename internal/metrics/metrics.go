// Package metrics holds the process-wide metrics registry: atomic counters and
// histograms shared across requests, never per-request state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every metric the engine emits. A single instance is created
// at process start and threaded through the clients and strategies that need it.
type Registry struct {
	EmbeddingRequests *prometheus.CounterVec
	EmbeddingLatency  *prometheus.HistogramVec

	StrategyRuns    *prometheus.CounterVec
	StrategyLatency *prometheus.HistogramVec
	StrategyResults *prometheus.HistogramVec

	RetrievalFallbacks prometheus.Counter
	RequestsTotal      *prometheus.CounterVec
}

// NewRegistry registers every metric against reg and returns the handle.
// Pass prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry across parallel test packages.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		EmbeddingRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Embedding calls by outcome.",
		}, []string{"outcome"}),
		EmbeddingLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "embedding",
			Name:      "latency_seconds",
			Help:      "Embedding call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		StrategyRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "strategy",
			Name:      "runs_total",
			Help:      "Strategy invocations by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		StrategyLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "strategy",
			Name:      "latency_seconds",
			Help:      "Strategy invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
		StrategyResults: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "strategy",
			Name:      "result_count",
			Help:      "Number of contexts returned by a strategy invocation.",
			Buckets:   []float64{0, 1, 3, 5, 10, 20, 50},
		}, []string{"strategy"}),
		RetrievalFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "orchestrator",
			Name:      "fallbacks_total",
			Help:      "Times the orchestrator fell back to Compression.",
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
	}
}
