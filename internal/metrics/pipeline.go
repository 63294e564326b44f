package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidex",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"stage"},
	)

	RetrievalCandidates = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidex",
			Name:      "retrieval_candidates",
			Help:      "Candidate count surviving the score floor",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"query_type"},
	)

	RerankAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidex",
			Name:      "rerank_attempts_total",
			Help:      "Rerank provider attempts by outcome",
		},
		[]string{"provider", "status"}, // status: "success" / "error"
	)

	EvidenceDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidex",
			Name:      "evidence_decisions_total",
			Help:      "Evidence gating decisions",
		},
		[]string{"outcome"}, // "sufficient" / reason code
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidex",
			Name:      "cache_total",
			Help:      "Cache hits and misses per tier",
		},
		[]string{"tier", "result"}, // tier: "embedding" / "context"; result: "hit" / "miss"
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evidex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evidex",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(RetrievalCandidates)
	prometheus.MustRegister(RerankAttemptsTotal)
	prometheus.MustRegister(EvidenceDecisionsTotal)
	prometheus.MustRegister(CacheTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	pipelineMetricsRegistered = true
}
