// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IngestEvents counts ingested envelopes by result (accepted, duplicate, rejected, bot).
	IngestEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storepulse_ingest_events_total",
		Help: "Ingested envelopes by result",
	}, []string{"result"})

	// QueryDuration tracks projection latency per endpoint.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storepulse_query_duration_seconds",
		Help:    "Query duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"query"})

	// QueryErrors counts failed queries by error kind.
	QueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storepulse_query_errors_total",
		Help: "Failed queries by error kind",
	}, []string{"query", "kind"})

	// SweepDeleted counts events removed by the retention sweep.
	SweepDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storepulse_retention_deleted_events_total",
		Help: "Events deleted by the retention sweep",
	})

	// SweepFailures counts per-store sweep failures.
	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storepulse_retention_sweep_failures_total",
		Help: "Per-store retention sweep failures",
	})

	// CacheLookups counts rollup cache lookups by result (hit, miss).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storepulse_rollup_cache_lookups_total",
		Help: "Rollup cache lookups by result",
	}, []string{"result"})

	// LLMFailures counts enrichment calls that fell back to the plain projection.
	LLMFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storepulse_llm_failures_total",
		Help: "LLM enrichment failures by operation",
	}, []string{"operation"})
)

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
