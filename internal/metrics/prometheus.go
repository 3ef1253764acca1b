package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policy_rag_query_duration_seconds",
			Help:    "Ask processing duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"tier"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_rag_query_total",
			Help: "Total number of questions processed",
		},
		[]string{"status"},
	)

	RelevanceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "policy_rag_relevance_score",
			Help:    "Model-reviewed relevance scores",
			Buckets: []float64{0, 5, 10, 25, 50, 75, 90, 100},
		},
	)

	SourcesSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "policy_rag_sources_suppressed_total",
			Help: "Answers whose sources were withheld for a low relevance score",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_rag_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_rag_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_rag_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_rag_documents_processed_total",
			Help: "PDFs handled by the ingestion pipeline",
		},
		[]string{"outcome"},
	)

	IndexBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_rag_index_builds_total",
			Help: "Vector index builds per tier",
		},
		[]string{"tier"},
	)

	IndexBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policy_rag_index_build_duration_seconds",
			Help:    "Vector index build duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"tier"},
	)

	IndexedChunks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "policy_rag_indexed_chunks",
			Help: "Chunks in the live index of each tier",
		},
		[]string{"tier"},
	)

	GovernanceRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_rag_governance_records_total",
			Help: "Governance extraction outcomes per file",
		},
		[]string{"outcome"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "policy_rag_active_sessions",
			Help: "Sessions currently held in memory",
		},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "policy_rag_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueryDuration,
			QueryTotal,
			RelevanceScore,
			SourcesSuppressed,
			LLMTokensUsed,
			CacheHits,
			CacheMisses,
			DocumentsProcessed,
			IndexBuilds,
			IndexBuildDuration,
			IndexedChunks,
			GovernanceRecords,
			ActiveSessions,
			BreakerState,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
