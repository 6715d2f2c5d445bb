// Package metrics exposes Prometheus instrumentation for retrieval, aggregation, and model calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// retrievalCallsTotal counts retrieval calls.
	// Labels: kind (story, need, vector, keyword), status (ok, error)
	retrievalCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasuke",
		Subsystem: "retrieval",
		Name:      "calls_total",
		Help:      "Total retrieval calls by kind and status",
	}, []string{"kind", "status"})

	// retrievalLatencySeconds measures one retrieval call.
	retrievalLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tasuke",
		Subsystem: "retrieval",
		Name:      "latency_seconds",
		Help:      "Latency of a single retrieval call",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"kind"})

	// hitsDroppedTotal counts hits discarded because no identity could be derived.
	hitsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tasuke",
		Subsystem: "aggregate",
		Name:      "hits_dropped_total",
		Help:      "Hits discarded for lacking an identity",
	})

	// candidatesPerAggregation records the size of the finalized candidate list.
	candidatesPerAggregation = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tasuke",
		Subsystem: "aggregate",
		Name:      "candidates",
		Help:      "Number of finalized candidates per aggregation",
		Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
	})

	// needsExtracted records how many needs each extraction produced.
	needsExtracted = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tasuke",
		Subsystem: "needs",
		Name:      "extracted",
		Help:      "Number of needs produced per extraction",
		Buckets:   []float64{0, 1, 2, 3, 4, 5},
	})

	// llmCallsTotal counts model calls.
	// Labels: operation (needs, summaries, plan, embeddings), status (ok, error, fallback)
	llmCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasuke",
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Total language model calls by operation and status",
	}, []string{"operation", "status"})
)

// RecordRetrieval records a retrieval call of the given kind.
func RecordRetrieval(kind string, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	retrievalCallsTotal.WithLabelValues(kind, status).Inc()
	retrievalLatencySeconds.WithLabelValues(kind).Observe(took.Seconds())
}

// RecordDroppedHit records one hit discarded for lacking an identity.
func RecordDroppedHit() {
	hitsDroppedTotal.Inc()
}

// RecordCandidates records the number of finalized candidates.
func RecordCandidates(n int) {
	candidatesPerAggregation.Observe(float64(n))
}

// RecordNeeds records the number of needs returned by an extraction.
func RecordNeeds(n int) {
	needsExtracted.Observe(float64(n))
}

// RecordLLMCall records a model call outcome. status is "ok", "error", or "fallback".
func RecordLLMCall(operation, status string) {
	llmCallsTotal.WithLabelValues(operation, status).Inc()
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
