package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sqlGenerationAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightqa_sql_generation_attempts",
			Help:    "Number of generation attempts used per question, by outcome.",
			Buckets: []float64{1, 2, 3},
		},
		[]string{"outcome"},
	)
	sqlGenerationLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flightqa_sql_generation_latency_ms",
			Help:    "Wall-clock latency of the generation/verification loop in milliseconds.",
			Buckets: []float64{250, 500, 1000, 2000, 5000, 10000, 20000, 40000, 80000},
		},
	)
	streamOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightqa_stream_outcomes_total",
			Help: "Total number of answer streams by terminal state.",
		},
		[]string{"outcome"},
	)
	streamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightqa_stream_events_total",
			Help: "Total number of stream events emitted, by event type.",
		},
		[]string{"type"},
	)
	policyDegradationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightqa_policy_degradations_total",
			Help: "Total number of policy lookups answered with a fallback.",
		},
		[]string{"reason"},
	)
	embeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightqa_embedding_cache_lookups_total",
			Help: "Embedding cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)
	mcpToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightqa_mcp_tool_calls_total",
			Help: "Total number of MCP tool calls by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)
	authRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightqa_auth_rejections_total",
			Help: "Total number of rejected requests by reason (missing_key, invalid_key, missing_role).",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		sqlGenerationAttempts,
		sqlGenerationLatencyMs,
		streamOutcomesTotal,
		streamEventsTotal,
		policyDegradationsTotal,
		embeddingCacheTotal,
		mcpToolCallsTotal,
		authRejectionsTotal,
	)
}

func ObserveSQLGeneration(attempts int, valid bool, elapsed time.Duration) {
	outcome := "exhausted"
	if valid {
		outcome = "valid"
	}
	sqlGenerationAttempts.WithLabelValues(outcome).Observe(float64(attempts))
	sqlGenerationLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func IncrementStreamOutcome(outcome string) {
	streamOutcomesTotal.WithLabelValues(outcome).Inc()
}

func IncrementStreamEvent(eventType string) {
	streamEventsTotal.WithLabelValues(eventType).Inc()
}

func IncrementPolicyDegradation(reason string) {
	policyDegradationsTotal.WithLabelValues(reason).Inc()
}

func ObserveEmbeddingCache(hit bool) {
	if hit {
		embeddingCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	embeddingCacheTotal.WithLabelValues("miss").Inc()
}

func IncrementMCPToolCall(tool, outcome string) {
	mcpToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

func IncrementAuthRejection(reason string) {
	authRejectionsTotal.WithLabelValues(reason).Inc()
}
